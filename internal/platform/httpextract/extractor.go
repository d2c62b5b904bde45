package httpextract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
)

// DefaultTimeout bounds a request when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps the response body read from the service.
const maxResponseBytes = 8 << 20

// Config configures an Extractor.
type Config struct {
	URL       string
	Timeout   time.Duration
	AuthToken string
}

// Extractor implements extraction.Extractor over HTTP.
type Extractor struct {
	url       string
	authToken string
	client    *http.Client
	logger    *slog.Logger
}

var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor validates cfg and returns an Extractor. A nil client gets a
// default one with cfg.Timeout.
func NewExtractor(cfg Config, client *http.Client, logger *slog.Logger) (*Extractor, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: extraction url must be an absolute http(s) url", extraction.ErrInvalidConfig)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		url:       cfg.URL,
		authToken: cfg.AuthToken,
		client:    client,
		logger:    logger.With("component", "http_extractor", "host", u.Host),
	}, nil
}

// Extract posts req and returns the response body as json.RawMessage.
func (e *Extractor) Extract(ctx context.Context, req domain.WorkRequest) (any, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", extraction.ErrInvalidConfig, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", extraction.ErrInvalidConfig, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if e.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	e.logger.DebugContext(ctx, "extraction service responded",
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, mapTransportError(err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", extraction.ErrInvalidResponse, maxResponseBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 || !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not valid JSON", extraction.ErrInvalidResponse)
	}
	return json.RawMessage(data), nil
}

// statusError classifies a non-2xx status.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: extraction service status %d", extraction.ErrTransientFailure, code)
	default:
		return fmt.Errorf("%w: extraction service status %d", extraction.ErrRequestRejected, code)
	}
}

func mapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", extraction.ErrTransientFailure, err)
	}
	return fmt.Errorf("%w: %v", extraction.ErrTransientFailure, err)
}
