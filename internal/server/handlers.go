package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mcdev/deduper/internal/auth"
	"github.com/mcdev/deduper/internal/submission"
)

// Request headers set by GitHub on webhook deliveries
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// MessageResponse is the JSON body of error and status responses
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, MessageResponse{Message: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Failed to read request body"})
		return
	}

	payload, err := s.deps.Verifier.Verify(r.Context(), body, r.Header.Get(HeaderSignature))
	if err != nil {
		if !errors.Is(err, auth.ErrAuthentication) {
			s.logger.Error("webhook verification failed", "error", err)
		} else {
			s.logger.Warn("rejected webhook delivery", "delivery", r.Header.Get(HeaderDelivery), "error", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get(HeaderEvent)
	if eventType == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "No " + HeaderEvent + " header"})
		return
	}

	// The delivery is acknowledged regardless of what happens to it next
	if err := s.deps.Dispatcher.HandleWebhookEvent(eventType, []byte(payload)); err != nil {
		s.logger.Warn("webhook event not dispatched",
			"type", eventType, "delivery", r.Header.Get(HeaderDelivery), "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxSubmissionBodyBytes)

	sub, err := submission.Parse(r)
	if err != nil {
		var verr *submission.ValidationError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, MessageResponse{Message: verr.Message})
		case errors.As(err, &maxErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, MessageResponse{Message: "Request body too large"})
		default:
			s.logger.Error("failed to parse submission", "error", err)
			writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Malformed request"})
		}
		return
	}

	if err := s.deps.Sink.Submit(r.Context(), sub); err != nil {
		s.logger.Error("failed to record submission", "id", sub.ID.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "Failed to record submission"})
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Success", ID: sub.ID.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Message: "Database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "OK"})
}
