// Package doclingserve talks to a docling-serve instance over HTTP, either with the
// synchronous convert endpoint or with async tasks that are polled to completion.
package doclingserve

import (
	"bytes"
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

const ID = "docling-serve"

const (
	convertPath      = "/v1/convert/file"
	convertAsyncPath = "/v1/convert/file/async"
	statusPathFmt    = "/v1/status/poll/%s"
	resultPathFmt    = "/v1/result/%s"
	healthPath       = "/health"
)

type Client struct {
	cfg    Config
	http   *backend.HTTPClient
	logger *slog.Logger
}

var (
	_ backend.Backend = (*Client)(nil)
	_ backend.Checker = (*Client)(nil)
)

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	// A sync conversion holds the connection for the whole document.
	timeout := backend.Seconds(cfg.DocumentTimeout) + 30*time.Second
	if cfg.UseAsync {
		timeout = 2 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   backend.NewHTTPClient(ID, cfg.BaseURL, cfg.APIKey, timeout, logger),
		logger: logger,
	}
}

func (c *Client) ID() string { return ID }

// CacheKey omits use_async: both modes return the same document.
func (c *Client) CacheKey() map[string]any { return c.cfg.CacheKey() }

func (c *Client) Config() Config { return c.cfg }

func (c *Client) Submit(ctx context.Context, doc *entity.Document) (backend.Outcome, error) {
	form := c.cfg.formData().AddFile("files", doc.Name, doc.Content)

	if !c.cfg.UseAsync {
		raw, err := c.http.PostForm(ctx, convertPath, form)
		if err != nil {
			return backend.Outcome{}, err
		}
		a, err := DecodeDocument(raw)
		if err != nil {
			return backend.Outcome{}, err
		}
		return backend.Immediate(a), nil
	}

	raw, err := c.http.PostForm(ctx, convertAsyncPath, form)
	if err != nil {
		return backend.Outcome{}, err
	}
	var task taskStatus
	if err := backend.DecodeJSON(raw, &task); err != nil {
		return backend.Outcome{}, err
	}
	if task.TaskID == "" {
		return backend.Outcome{}, common.JobErrorf(constants.KindInternal, "async submit returned no task_id")
	}
	c.logger.Debug("doclingserve.task.submitted", "task_id", task.TaskID, "path", doc.Path)
	return backend.Pending(task.TaskID), nil
}

func (c *Client) Poll(ctx context.Context, handle string) (backend.Status, error) {
	var task taskStatus
	if _, err := c.http.GetJSON(ctx, fmt.Sprintf(statusPathFmt, url.PathEscape(handle)), &task); err != nil {
		return backend.Status{}, err
	}

	switch task.state() {
	case "success", "completed":
		raw, err := c.http.Do(ctx, http.MethodGet, fmt.Sprintf(resultPathFmt, url.PathEscape(handle)), nil, "")
		if err != nil {
			return backend.Status{}, err
		}
		a, err := DecodeDocument(raw)
		if err != nil {
			return backend.Status{}, err
		}
		return backend.Succeeded(a), nil
	case "failure", "failed", "revoked":
		msg := task.Error
		if msg == "" {
			msg = "unknown error"
		}
		return backend.Failed(common.JobErrorf(constants.KindInvalidDocument, "task %s failed: %s", handle, msg)), nil
	case "pending", "running", "started", "queued":
		return backend.Running(), nil
	}
	return backend.Status{}, common.JobErrorf(constants.KindInternal, "unknown task status %q", task.state())
}

// Check calls the health endpoint.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.http.Do(ctx, http.MethodGet, healthPath, nil, ""); err != nil {
		return fmt.Errorf("docling-serve not available at %s: %w", c.cfg.BaseURL, err)
	}
	return nil
}

// taskStatus accepts both the current (task_status) and older (status) field names.
type taskStatus struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	Status     string `json:"status"`
	Error      string `json:"error"`
}

func (t taskStatus) state() string {
	s := t.TaskStatus
	if s == "" {
		s = t.Status
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// stringFields are tried in order; later aliases never replace an earlier hit.
var stringFields = []struct {
	field  string
	format constants.Format
}{
	{"md_content", constants.FormatMarkdown},
	{"html_content", constants.FormatHTML},
	{"text_content", constants.FormatText},
	{"doctags_content", constants.FormatDocTags},
	{"markdown", constants.FormatMarkdown},
	{"html", constants.FormatHTML},
	{"text", constants.FormatText},
}

// DecodeDocument extracts the payloads of a convert response. The document is read
// from "document", the first of "documents", or the response root. When no content is
// present the whole response becomes the json payload.
func DecodeDocument(raw []byte) (*entity.Artifact, error) {
	var root map[string]json.RawMessage
	if err := backend.DecodeJSON(raw, &root); err != nil {
		return nil, err
	}

	doc := root
	if d, ok := root["document"]; ok && !isNull(d) {
		if err := backend.DecodeJSON(d, &doc); err != nil {
			return nil, err
		}
	} else if ds, ok := root["documents"]; ok && !isNull(ds) {
		var docs []map[string]json.RawMessage
		if err := backend.DecodeJSON(ds, &docs); err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			doc = docs[0]
		}
	}

	a := &entity.Artifact{}
	for _, sf := range stringFields {
		v, ok := doc[sf.field]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) != nil || strings.TrimSpace(s) == "" {
			continue
		}
		if _, seen := a.Payloads[sf.format]; seen {
			continue
		}
		a.Add(sf.format, s)
	}
	if v, ok := doc["json_content"]; ok && !isNull(v) {
		a.Add(constants.FormatJSON, indent(v))
	}

	if a.Empty() {
		if status := statusOf(root); status == "failure" {
			return nil, common.JobErrorf(constants.KindInvalidDocument, "conversion failed: %s", errorsOf(root))
		}
		return entity.NewArtifact(constants.FormatJSON, indent(raw)), nil
	}
	return a, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func indent(v []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		return string(v)
	}
	return buf.String()
}

func statusOf(root map[string]json.RawMessage) string {
	var s string
	_ = json.Unmarshal(root["status"], &s)
	return strings.ToLower(s)
}

func errorsOf(root map[string]json.RawMessage) string {
	if v, ok := root["errors"]; ok && !isNull(v) {
		return string(v)
	}
	return "no content returned"
}
