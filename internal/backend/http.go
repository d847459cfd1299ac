package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
)

// maxErrorBody caps how much of an error response ends up in messages.
const maxErrorBody = 512

// HTTPClient is the thin JSON/multipart client shared by the HTTP backends.
type HTTPClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient builds a client for baseURL. timeout bounds a single request.
func NewHTTPClient(name, baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// URL joins path onto the base URL.
func (c *HTTPClient) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do sends a request and returns the body of a 2xx response. Other responses and
// transport failures come back as classified *common.JobError values; context
// errors are returned unchanged so callers can tell cancellation apart.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()
	url := c.URL(path)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, common.JobErrorf(constants.KindInternal, "build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("backend.http.request", "backend", c.name, "req_id", reqID,
		"job_id", common.JobIDFromContext(ctx), "method", method, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend.http.send_error", "backend", c.name, "req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, ClassifyTransport(ctx, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("backend.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(ctx, err)
	}

	c.logger.Debug("backend.http.response", "backend", c.name, "req_id", reqID, "status", resp.StatusCode,
		"bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	if err := ClassifyResponse(resp.StatusCode, resp.Header, raw); err != nil {
		return raw, err
	}
	return raw, nil
}

// GetJSON fetches path and decodes the response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out any) ([]byte, error) {
	raw, err := c.Do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return raw, err
	}
	if out != nil {
		if err := DecodeJSON(raw, out); err != nil {
			return raw, err
		}
	}
	return raw, nil
}

// PostForm uploads a multipart form and returns the raw response body.
func (c *HTTPClient) PostForm(ctx context.Context, path string, form *Form) ([]byte, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, common.JobErrorf(constants.KindInternal, "encode form: %v", err)
	}
	return c.Do(ctx, http.MethodPost, path, bytes.NewReader(body), contentType)
}

// DecodeJSON treats a malformed body as a transient network fault.
func DecodeJSON(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return common.JobErrorf(constants.KindNetwork, "malformed response (%d bytes): %v", len(raw), err)
	}
	return nil
}

// ClassifyTransport maps a failed round trip onto an error kind.
func ClassifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// Per-request client timeout, not the document deadline.
		return common.JobErrorf(constants.KindNetwork, "request timed out: %v", err)
	}
	return common.NewJobError(constants.KindNetwork, err)
}

// ClassifyResponse returns nil for 2xx statuses.
func ClassifyResponse(status int, header http.Header, body []byte) error {
	if status/100 == 2 {
		return nil
	}
	msg := fmt.Errorf("status %d: %s", status, truncate(strings.TrimSpace(string(body)), maxErrorBody))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return common.NewJobError(constants.KindAuthentication, msg)
	case status == http.StatusTooManyRequests:
		je := common.NewJobError(constants.KindRateLimited, msg)
		je.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
		return je
	case status == http.StatusUnsupportedMediaType:
		return common.NewJobError(constants.KindUnsupported, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		status == http.StatusRequestEntityTooLarge:
		return common.NewJobError(constants.KindInvalidDocument, msg)
	case status == http.StatusNotFound:
		return common.NewJobError(constants.KindInvalidDocument, msg)
	case status == http.StatusRequestTimeout || status >= 500:
		return common.NewJobError(constants.KindNetwork, msg)
	}
	return common.NewJobError(constants.KindInternal, msg)
}

// ParseRetryAfter accepts delta-seconds or an HTTP date; zero means no hint.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
