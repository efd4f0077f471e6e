// Package stream downloads and decodes the newline-delimited JSON result
// file of a completed bulk operation. Decoding is all-or-nothing: any network
// or parse fault aborts with no partial output.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/models"
)

const (
	// DefaultTimeout bounds the whole result download.
	DefaultTimeout = 10 * time.Minute

	// maxLineBytes caps one result line. Individual records are small; this
	// guards against a malformed file, not a legitimate one.
	maxLineBytes = 10 * 1024 * 1024
)

// Streamer fetches bulk operation result files.
type Streamer struct {
	httpClient *http.Client
	logger     arbor.ILogger
}

// Option configures the Streamer.
type Option func(*Streamer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Streamer) {
		s.httpClient = httpClient
	}
}

// NewStreamer creates a Streamer.
func NewStreamer(logger arbor.ILogger, opts ...Option) *Streamer {
	s := &Streamer{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch streams the result file at downloadURL and decodes it into records
// in arrival order.
func (s *Streamer) Fetch(ctx context.Context, downloadURL string) ([]models.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, &models.StreamError{Op: "download", Err: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &models.StreamError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.StreamError{Op: "download", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	records, err := Decode(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("records", len(records)).
		Msg("Result file decoded")

	return records, nil
}

// Decode reads newline-delimited JSON into records, preserving line order.
func Decode(r io.Reader) ([]models.Record, error) {
	return DecodeTyped[models.Record](r)
}

// DecodeTyped reads newline-delimited JSON into caller-defined records. Blank
// lines are skipped; result files carry a trailing empty line. Every
// non-blank line must parse independently or the whole decode fails.
func DecodeTyped[T any](r io.Reader) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	out := []T{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var record T
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return nil, &models.StreamError{Op: "decode", Err: fmt.Errorf("line %d: %w", line, err)}
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, &models.StreamError{Op: "read", Err: err}
	}

	return out, nil
}
