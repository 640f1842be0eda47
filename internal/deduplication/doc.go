// Package deduplication reconciles automatically filed crash reports on the
// issue tracker and closes the ones that duplicate an existing report.
//
// # Overview
//
// Every crash report carries a stack trace. The frames belonging to the plugin
// are normalized into a fingerprint, and every fingerprint may point at one
// canonical issue (its target). An open issue whose fingerprint targets a
// different issue is a duplicate: it gets a "Duplicate of #N" comment and is
// closed.
//
// Targets come from maintainers. A comment of exactly "Duplicate of #N" by a
// user with write access or above marks the issue a duplicate of #N and makes
// #N the target of the issue's fingerprint. When several markers exist the one
// with the latest comment time wins.
//
// # Passes
//
// The Engine has two entry points that converge on the same state:
//
//  1. Sweep + CloseDuplicates (RunOnce): rebuild everything from the tracker.
//     Run by the Scheduler on start and then daily at midnight UTC.
//  2. HandleEvent: apply a single webhook event. Run by the Dispatcher's
//     workers after the HTTP handler has acknowledged the delivery.
//
// Webhook events may be dropped when the Dispatcher's queue is full; the next
// sweep repairs whatever they would have changed.
package deduplication
