// Package llamaparse implements the LlamaParse cloud API. Every submission is an
// asynchronous job; results are fetched once the job reports SUCCESS.
package llamaparse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

const ID = "llamaparse"

const (
	uploadPath    = "/api/parsing/upload"
	jobPathFmt    = "/api/parsing/job/%s"
	resultPathFmt = "/api/parsing/job/%s/result/%s"
)

type Client struct {
	cfg    Config
	http   *backend.HTTPClient
	logger *slog.Logger
}

var _ backend.Backend = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   backend.NewHTTPClient(ID, cfg.BaseURL, cfg.APIKey, 2*time.Minute, logger),
		logger: logger,
	}
}

func (c *Client) ID() string { return ID }

func (c *Client) CacheKey() map[string]any { return c.cfg.CacheKey() }

func (c *Client) Config() Config { return c.cfg }

type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) Submit(ctx context.Context, doc *entity.Document) (backend.Outcome, error) {
	if c.cfg.APIKey == "" {
		return backend.Outcome{}, common.JobErrorf(constants.KindAuthentication, "no api key configured (set LLAMA_CLOUD_API_KEY)")
	}
	form := c.cfg.formData().AddFile("file", doc.Name, doc.Content)
	raw, err := c.http.PostForm(ctx, uploadPath, form)
	if err != nil {
		return backend.Outcome{}, err
	}
	var job jobResponse
	if err := backend.DecodeJSON(raw, &job); err != nil {
		return backend.Outcome{}, err
	}
	if job.ID == "" {
		return backend.Outcome{}, common.JobErrorf(constants.KindInternal, "upload returned no job id")
	}
	c.logger.Debug("llamaparse.job.submitted", "job", job.ID, "path", doc.Path)
	return backend.Pending(job.ID), nil
}

func (c *Client) Poll(ctx context.Context, handle string) (backend.Status, error) {
	var job jobResponse
	if _, err := c.http.GetJSON(ctx, fmt.Sprintf(jobPathFmt, url.PathEscape(handle)), &job); err != nil {
		return backend.Status{}, err
	}

	switch strings.ToUpper(job.Status) {
	case "PENDING":
		return backend.Running(), nil
	case "SUCCESS":
		a, err := c.fetchResults(ctx, handle)
		if err != nil {
			return backend.Status{}, err
		}
		return backend.Succeeded(a), nil
	case "ERROR":
		return backend.Failed(common.JobErrorf(constants.KindInvalidDocument, "job %s: %s %s", handle, job.ErrorCode, job.ErrorMessage)), nil
	case "CANCELED", "CANCELLED":
		return backend.Failed(common.JobErrorf(constants.KindInternal, "job %s was cancelled remotely", handle)), nil
	}
	return backend.Status{}, common.JobErrorf(constants.KindInternal, "unknown job status %q", job.Status)
}

func (c *Client) resultTypes() []string {
	types := []string{c.cfg.ResultType}
	for _, t := range c.cfg.ExtraFormats {
		if t != c.cfg.ResultType {
			types = append(types, t)
		}
	}
	return types
}

func (c *Client) fetchResults(ctx context.Context, handle string) (*entity.Artifact, error) {
	a := &entity.Artifact{}
	for _, rt := range c.resultTypes() {
		raw, err := c.http.Do(ctx, http.MethodGet, fmt.Sprintf(resultPathFmt, url.PathEscape(handle), rt), nil, "")
		if err != nil {
			return nil, err
		}
		format, content, err := decodeResult(rt, raw)
		if err != nil {
			return nil, err
		}
		a.Add(format, content)
	}
	// The configured result type stays primary even when it is not markdown.
	if f, ok := constants.ParseFormat(c.cfg.ResultType); ok {
		a.Primary = f
	}
	return a, nil
}

func decodeResult(resultType string, raw []byte) (constants.Format, string, error) {
	switch resultType {
	case "markdown":
		var r struct {
			Markdown string `json:"markdown"`
		}
		if err := backend.DecodeJSON(raw, &r); err != nil {
			return "", "", err
		}
		return constants.FormatMarkdown, r.Markdown, nil
	case "text":
		var r struct {
			Text string `json:"text"`
		}
		if err := backend.DecodeJSON(raw, &r); err != nil {
			return "", "", err
		}
		return constants.FormatText, r.Text, nil
	case "json":
		if !json.Valid(raw) {
			return "", "", common.JobErrorf(constants.KindNetwork, "malformed json result")
		}
		return constants.FormatJSON, string(raw), nil
	}
	return "", "", common.JobErrorf(constants.KindInternal, "unsupported result type %q", resultType)
}
