package doclingserve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

func testDoc() *entity.Document {
	return &entity.Document{Path: "/tmp/a.pdf", Name: "a.pdf", Ext: "pdf", Family: constants.FamilyPDF, Content: []byte("%PDF-1.7")}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, r http.Handler, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "secret"
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, nil)
}

func TestSubmitSyncSendsFormAndDecodes(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/v1/convert/file", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		require.NoError(t, req.ParseMultipartForm(1<<20))

		assert.Equal(t, []string{"true"}, req.MultipartForm.Value["do_ocr"])
		assert.Equal(t, []string{"md", "json"}, req.MultipartForm.Value["to_formats"])
		assert.Equal(t, []string{"2", "5"}, req.MultipartForm.Value["page_range"])
		assert.Equal(t, []string{"standard"}, req.MultipartForm.Value["pipeline"])
		files := req.MultipartForm.File["files"]
		require.Len(t, files, 1)
		assert.Equal(t, "a.pdf", files[0].Filename)

		writeJSON(w, http.StatusOK, map[string]any{
			"document": map[string]any{
				"md_content":   "# Title",
				"json_content": map[string]any{"name": "a"},
			},
			"status": "success",
		})
	})
	c := newClient(t, r, func(cfg *Config) {
		cfg.UseOCR = true
		cfg.ToFormats = []string{"md", "json"}
		cfg.PageRange = []int64{2, 5}
	})

	out, err := c.Submit(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Equal(t, backend.OutcomeImmediate, out.Kind)
	assert.Equal(t, "# Title", out.Artifact.PrimaryContent())
	assert.Contains(t, out.Artifact.Payloads[constants.FormatJSON], `"name": "a"`)
}

func TestSubmitAsyncThenPoll(t *testing.T) {
	var polls atomic.Int32
	r := chi.NewRouter()
	r.Post("/v1/convert/file/async", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "job1", "task_status": "pending"})
	})
	r.Get("/v1/status/poll/{id}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "job1", chi.URLParam(req, "id"))
		status := "started"
		if polls.Add(1) >= 2 {
			status = "success"
		}
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "job1", "task_status": status})
	})
	r.Get("/v1/result/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"document": map[string]any{"md_content": "# Async"}})
	})
	c := newClient(t, r, func(cfg *Config) { cfg.UseAsync = true })
	ctx := context.Background()

	out, err := c.Submit(ctx, testDoc())
	require.NoError(t, err)
	require.Equal(t, backend.OutcomePending, out.Kind)
	assert.Equal(t, "job1", out.Handle)

	st, err := c.Poll(ctx, out.Handle)
	require.NoError(t, err)
	assert.Equal(t, backend.StateRunning, st.State)

	st, err = c.Poll(ctx, out.Handle)
	require.NoError(t, err)
	require.Equal(t, backend.StateSucceeded, st.State)
	assert.Equal(t, "# Async", st.Artifact.PrimaryContent())
}

func TestPollFailedTask(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/status/poll/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task_id": "x", "status": "failed", "error": "bad pdf"})
	})
	c := newClient(t, r, nil)

	st, err := c.Poll(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, backend.StateFailed, st.State)
	assert.Equal(t, constants.KindInvalidDocument, common.KindOf(st.Err))
	assert.Contains(t, st.Err.Error(), "bad pdf")
}

func TestSubmitClassifiesHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   constants.Kind
	}{
		{http.StatusUnauthorized, constants.KindAuthentication},
		{http.StatusTooManyRequests, constants.KindRateLimited},
		{http.StatusUnprocessableEntity, constants.KindInvalidDocument},
		{http.StatusUnsupportedMediaType, constants.KindUnsupported},
		{http.StatusBadGateway, constants.KindNetwork},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/v1/convert/file", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			c := newClient(t, r, nil)
			_, err := c.Submit(context.Background(), testDoc())
			require.Error(t, err)
			assert.Equal(t, tc.kind, common.KindOf(err))
		})
	}
}

func TestCheck(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	assert.NoError(t, newClient(t, r, nil).Check(context.Background()))

	down := chi.NewRouter()
	down.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	assert.Error(t, newClient(t, down, nil).Check(context.Background()))
}

func TestDecodeDocumentFallbacks(t *testing.T) {
	t.Run("documents array", func(t *testing.T) {
		a, err := DecodeDocument([]byte(`{"documents":[{"markdown":"# A"},{"markdown":"# B"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "# A", a.PrimaryContent())
	})
	t.Run("root object", func(t *testing.T) {
		a, err := DecodeDocument([]byte(`{"text_content":"plain","html":"<p>x</p>"}`))
		require.NoError(t, err)
		assert.Equal(t, "plain", a.Payloads[constants.FormatText])
		assert.Equal(t, "<p>x</p>", a.Payloads[constants.FormatHTML])
		assert.Equal(t, constants.FormatText, a.Primary)
	})
	t.Run("primary field wins over alias", func(t *testing.T) {
		a, err := DecodeDocument([]byte(`{"document":{"md_content":"# real","markdown":"# alias"}}`))
		require.NoError(t, err)
		assert.Equal(t, "# real", a.PrimaryContent())
	})
	t.Run("no content keeps raw json", func(t *testing.T) {
		a, err := DecodeDocument([]byte(`{"document":{"md_content":"  "},"timings":{}}`))
		require.NoError(t, err)
		assert.Equal(t, constants.FormatJSON, a.Primary)
		assert.Contains(t, a.PrimaryContent(), "timings")
	})
	t.Run("conversion failure", func(t *testing.T) {
		_, err := DecodeDocument([]byte(`{"document":{},"status":"failure","errors":[{"error_message":"boom"}]}`))
		require.Error(t, err)
		assert.Equal(t, constants.KindInvalidDocument, common.KindOf(err))
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeDocument([]byte(`<html>`))
		require.Error(t, err)
		assert.Equal(t, constants.KindNetwork, common.KindOf(err))
	})
}

func TestCacheKeyExcludesRuntimeSettings(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.APIKey = "other"
	b.PollInterval = 1
	b.MaxPollAttempts = 3
	b.UseAsync = true
	b.MaxRetries = 9
	b.DocumentTimeout = 10
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	b.TableMode = "fast"
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
}

func TestSubmitAsyncWithoutTaskIDIsNotRetried(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/v1/convert/file/async", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"task_status": "pending"})
	})
	c := newClient(t, r, func(cfg *Config) { cfg.UseAsync = true })

	_, err := c.Submit(context.Background(), testDoc())
	require.Error(t, err)
	je := common.AsJobError(err)
	assert.Equal(t, constants.KindInternal, je.Kind)
	assert.False(t, je.Retryable())
}
