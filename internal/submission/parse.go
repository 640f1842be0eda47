package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type part struct {
	contentType string
	isFile      bool
	value       string
}

// Parse reads a multipart/form-data crash report from r.
//
// The request must contain a "metadata" part (application/json) and a
// "stacktrace" part (text/plain). Any other part belongs to an attachment:
// "<name>-body" is required for every name seen, "<name>-displayText" is
// optional. Malformed input yields a *ValidationError.
func Parse(r *http.Request) (*Submission, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, &ValidationError{Message: "Request is not multipart/form-data"}
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, &ValidationError{Message: "Request is not multipart/form-data"}
	}

	parts, order, err := readParts(reader)
	if err != nil {
		return nil, err
	}

	metaPart, err := takePart(parts, MetadataPart, "application/json")
	if err != nil {
		return nil, err
	}
	var metadata Metadata
	dec := json.NewDecoder(strings.NewReader(metaPart.value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&metadata); err != nil {
		return nil, &ValidationError{Field: MetadataPart, Message: "Invalid metadata: " + err.Error()}
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	stackPart, err := takePart(parts, StacktracePart, "text/plain")
	if err != nil {
		return nil, err
	}

	attachments, err := collectAttachments(parts, order)
	if err != nil {
		return nil, err
	}

	return &Submission{
		ID:          uuid.New(),
		ReceivedAt:  time.Now().UTC(),
		Metadata:    metadata,
		Stacktrace:  stackPart.value,
		Attachments: attachments,
	}, nil
}

// readParts reads every part into memory, rejecting unnamed and repeated names
func readParts(reader *multipart.Reader) (map[string]*part, []string, error) {
	parts := make(map[string]*part)
	var order []string
	for {
		p, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, nil, err
			}
			return nil, nil, &ValidationError{Message: "Malformed multipart body"}
		}

		name := p.FormName()
		if name == "" {
			p.Close()
			return nil, nil, &ValidationError{Message: "Unnamed part"}
		}
		if _, ok := parts[name]; ok {
			p.Close()
			return nil, nil, &ValidationError{Field: name, Message: "Duplicate part name: " + name}
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p); err != nil {
			p.Close()
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, nil, err
			}
			return nil, nil, &ValidationError{Field: name, Message: "Malformed part: " + name}
		}
		p.Close()

		parts[name] = &part{
			contentType: p.Header.Get("Content-Type"),
			isFile:      p.FileName() != "",
			value:       buf.String(),
		}
		order = append(order, name)
	}
	return parts, order, nil
}

// takePart removes and verifies a required part
func takePart(parts map[string]*part, name, contentType string) (*part, error) {
	p, ok := parts[name]
	if !ok {
		return nil, &ValidationError{Field: name, Message: fmt.Sprintf("No %s part found", name)}
	}
	delete(parts, name)
	if err := verifyPart(name, p, contentType); err != nil {
		return nil, err
	}
	return p, nil
}

// verifyPart checks that a part is a form field with a matching Content-Type.
// A part without a Content-Type header is accepted.
func verifyPart(name string, p *part, contentType string) error {
	if p.isFile {
		return &ValidationError{Field: name, Message: name + " part is not a form-item"}
	}
	if p.contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(p.contentType)
	if err != nil || !strings.EqualFold(mediaType, contentType) {
		return &ValidationError{Field: name, Message: fmt.Sprintf("%s must have a Content-Type of %s", name, contentType)}
	}
	return nil
}

// collectAttachments groups the remaining parts by the name before the first
// dash, in order of first appearance
func collectAttachments(parts map[string]*part, order []string) ([]Attachment, error) {
	seen := make(map[string]bool)
	var attachments []Attachment
	for _, partName := range order {
		if _, ok := parts[partName]; !ok {
			continue
		}
		name, _, _ := strings.Cut(partName, "-")
		if seen[name] {
			continue
		}
		seen[name] = true

		bodyName := name + "-" + AttachmentBodySuffix
		body, ok := parts[bodyName]
		if !ok {
			return nil, &ValidationError{Field: partName, Message: "Unknown attachment part name: " + name}
		}
		if err := verifyPart(bodyName, body, "text/plain"); err != nil {
			return nil, err
		}

		attachment := Attachment{Name: name, Body: body.value}
		displayName := name + "-" + AttachmentDisplayTextSuffix
		if display, ok := parts[displayName]; ok {
			if err := verifyPart(displayName, display, "text/plain"); err != nil {
				return nil, err
			}
			text := display.value
			attachment.DisplayText = &text
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}
