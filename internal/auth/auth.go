// Package auth holds the two credentials the service deals in: the scoped
// installation token used for outbound tracker calls, and the shared secret
// used to verify inbound webhook deliveries.
package auth

import "errors"

// ErrAuthentication is returned for a failed credential refresh and for
// webhook deliveries with a missing or invalid signature.
var ErrAuthentication = errors.New("authentication failed")
