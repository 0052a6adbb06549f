package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBackendDisabled is returned when no backend URL is configured.
var ErrBackendDisabled = errors.New("source: backend not configured")

// Payload is a write request body. Type is the discriminator the backend
// dispatches on.
type Payload interface {
	PayloadType() string
}

// RecordType is the discriminator of a daily collection record.
const RecordType = "record"

// Record is one site's collection figures for a date.
type Record struct {
	Type        string `json:"type"`
	Date        string `json:"date" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Site        string `json:"site" validate:"required"`
	Fixed       int    `json:"fixed" validate:"gte=0"`
	Mobile      int    `json:"mobile" validate:"gte=0"`
	Total       int    `json:"total" validate:"gte=0"`
	SubmittedBy string `json:"submittedBy,omitempty"`
}

// PayloadType implements Payload.
func (r Record) PayloadType() string {
	return RecordType
}

// Backend posts write requests. Responses are never read; a request that
// leaves without a network error counts as delivered.
type Backend struct {
	URL    string
	Client *http.Client
}

// NewBackend builds a backend client. An empty url disables submissions.
func NewBackend(rawURL string, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Backend{URL: rawURL, Client: client}
}

// Enabled reports whether a backend URL is configured.
func (b *Backend) Enabled() bool {
	return b != nil && b.URL != ""
}

// Submit posts payload as JSON with its type discriminator set.
func (b *Backend) Submit(ctx context.Context, payload Payload) error {
	if !b.Enabled() {
		return ErrBackendDisabled
	}
	if payload == nil || payload.PayloadType() == "" {
		return errors.New("source: payload type required")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// encodePayload marshals payload and forces its "type" field.
func encodePayload(payload Payload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("source: encode payload: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("source: payload must be a JSON object: %w", err)
	}
	fields["type"] = payload.PayloadType()
	return json.Marshal(fields)
}
