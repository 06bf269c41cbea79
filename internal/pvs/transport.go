package pvs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pvs_monitor/internal/logger"
)

// DefaultRequestTimeout bounds every request; the device is slow under load.
const DefaultRequestTimeout = 30 * time.Second

// Transport issues GET requests against a single PVS host and classifies failures.
// It knows nothing about endpoint semantics.
type Transport struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewTransport accepts a bare host ("192.168.1.10", "pvs.local:8080") or a full base URL.
func NewTransport(host string, timeout time.Duration, log *logger.Logger) *Transport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	base := strings.TrimRight(host, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Transport{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// BaseURL returns the normalized base URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// GetJSON fetches pathAndQuery and decodes the body into target. Numbers are decoded as
// json.Number so integer builds and float readings keep their exact text.
func (t *Transport) GetJSON(ctx context.Context, pathAndQuery string, header http.Header, target any) error {
	url := t.baseURL + pathAndQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, url, err)
	}
	defer resp.Body.Close()

	t.log.Debugw("pvs_request", "path", redactPath(pathAndQuery), "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: redactPath(pathAndQuery)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: reading %s: %v", ErrTransportTimeout, redactPath(pathAndQuery), err)
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, redactPath(pathAndQuery), err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request to %s canceled: %w", url, ctx.Err())
	}
	if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailure, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redactPath drops the query string from logged and reported paths.
func redactPath(pathAndQuery string) string {
	if i := strings.IndexByte(pathAndQuery, '?'); i >= 0 {
		return pathAndQuery[:i]
	}
	return pathAndQuery
}
