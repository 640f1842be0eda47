// Package submission parses crash reports submitted directly by the plugin.
package submission

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Multipart part names
const (
	MetadataPart   = "metadata"
	StacktracePart = "stacktrace"

	// Attachment parts are named "<name>-body" and "<name>-displayText"
	AttachmentBodySuffix        = "body"
	AttachmentDisplayTextSuffix = "displayText"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Metadata describes the environment a crash was reported from
type Metadata struct {
	PluginName    string  `json:"pluginName" validate:"required,max=1024"`
	PluginVersion string  `json:"pluginVersion" validate:"required,max=1024"`
	OSName        string  `json:"osName" validate:"required,max=1024"`
	JavaVersion   string  `json:"javaVersion" validate:"required,max=1024"`
	JavaVMVendor  string  `json:"javaVmVendor" validate:"required,max=1024"`
	IsEAP         *bool   `json:"isEap" validate:"required"`
	IdeaBuild     string  `json:"ideaBuild" validate:"required,max=1024"`
	IdeaVersion   string  `json:"ideaVersion" validate:"required,max=1024"`
	LastAction    *string `json:"lastAction,omitempty" validate:"omitempty,max=1024"`
}

// Validate checks the metadata against its field constraints
func (m *Metadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return &ValidationError{
				Field:   MetadataPart,
				Message: "Invalid metadata: " + fe.Field() + " failed " + fe.Tag() + " check",
			}
		}
		return &ValidationError{Field: MetadataPart, Message: "Invalid metadata: " + err.Error()}
	}
	return nil
}

// Attachment is an extra text block sent with a report
type Attachment struct {
	Name        string  `json:"name"`
	DisplayText *string `json:"display_text,omitempty"`
	Body        string  `json:"body"`
}

// Submission is one parsed crash report
type Submission struct {
	ID          uuid.UUID    `json:"id"`
	ReceivedAt  time.Time    `json:"received_at"`
	Metadata    Metadata     `json:"metadata"`
	Stacktrace  string       `json:"stacktrace"`
	Attachments []Attachment `json:"attachments"`
}

// ValidationError is a malformed submission. Message is safe to return to the
// client.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Sink receives accepted submissions
type Sink interface {
	Submit(ctx context.Context, sub *Submission) error
}

// LogSink records accepted submissions as structured log lines
type LogSink struct {
	Logger *slog.Logger
}

// Submit logs the submission's metadata and sizes
func (s *LogSink) Submit(ctx context.Context, sub *Submission) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lastAction := ""
	if sub.Metadata.LastAction != nil {
		lastAction = *sub.Metadata.LastAction
	}
	logger.InfoContext(ctx, "crash report submitted",
		"id", sub.ID.String(),
		"plugin_version", sub.Metadata.PluginVersion,
		"idea_build", sub.Metadata.IdeaBuild,
		"os", sub.Metadata.OSName,
		"java", sub.Metadata.JavaVersion,
		"eap", sub.Metadata.IsEAP != nil && *sub.Metadata.IsEAP,
		"last_action", lastAction,
		"stacktrace_bytes", len(sub.Stacktrace),
		"attachments", len(sub.Attachments),
	)
	return nil
}
