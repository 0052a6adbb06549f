// Package source talks to the two external HTTP endpoints of the dashboard:
// the published CSV export that feeds ingestion and the backend that accepts
// new records.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrTransport marks a source that could not be read.
var ErrTransport = errors.New("source: transport failure")

// StatusError reports a non-2xx answer from the CSV endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: unexpected status %d", e.StatusCode)
}

// Is makes a StatusError match ErrTransport.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// CacheBustParam is appended to every fetch so intermediaries never serve a
// stale export.
const CacheBustParam = "_ts"

// DefaultTimeout applies when no client is configured.
const DefaultTimeout = 20 * time.Second

// CSVSource fetches the raw export text.
type CSVSource struct {
	URL    string
	Client *http.Client
	now    func() time.Time
}

// NewCSVSource builds a source for rawURL using client, or a client with
// DefaultTimeout when nil.
func NewCSVSource(rawURL string, client *http.Client) *CSVSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &CSVSource{URL: rawURL, Client: client, now: time.Now}
}

// Fetch downloads the export. Non-2xx answers return a *StatusError; network
// failures are wrapped in ErrTransport.
func (s *CSVSource) Fetch(ctx context.Context) (string, error) {
	target, err := s.bustedURL()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "text/csv")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	return string(body), nil
}

func (s *CSVSource) bustedURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", ErrTransport, s.URL)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	q := u.Query()
	q.Set(CacheBustParam, strconv.FormatInt(now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *CSVSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}
