// Package einoparse exposes the parse pipeline as eino document components, so RAG
// graphs can load office documents and scans through the configured backend and cache.
package einoparse

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// Metadata keys set on every produced document.
const (
	MetaKeyFingerprint = "fingerprint"
	MetaKeyBackend     = "backend"
	MetaKeyFormat      = "format"
	MetaKeyCached      = "cached"
)

// Orchestrator is the part of pipeline.Orchestrator the adapter needs.
type Orchestrator interface {
	ParseOne(ctx context.Context, path string) pipeline.Result
}

type options struct {
	format constants.Format
}

// WithFormat selects which payload becomes the document content instead of the primary one.
func WithFormat(f constants.Format) parser.Option {
	return parser.WrapImplSpecificOptFn(func(o *options) {
		o.format = f
	})
}

// Parser implements parser.Parser and document.Loader.
type Parser struct {
	orch      Orchestrator
	backendID string
}

var (
	_ parser.Parser   = (*Parser)(nil)
	_ document.Loader = (*Parser)(nil)
)

func New(orch Orchestrator, backendID string) *Parser {
	return &Parser{orch: orch, backendID: backendID}
}

func (p *Parser) GetType() string { return "DocParse" }

// Parse copies reader into a temporary file named after the URI option (the extension
// selects the input family) and parses it.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	common := parser.GetCommonOptions(&parser.Options{}, opts...)
	name := filepath.Base(localPath(common.URI))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("einoparse: a URI with a file extension is required")
	}

	dir, err := os.MkdirTemp("", "docparse-eino-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	tmp := filepath.Join(dir, name)
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("einoparse: buffer input: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return p.parsePath(ctx, tmp, common.URI, opts...)
}

// Load parses a local file. src.URI may be a plain path or a file:// URL.
func (p *Parser) Load(ctx context.Context, src document.Source, opts ...document.LoaderOption) ([]*schema.Document, error) {
	lo := document.GetLoaderCommonOptions(&document.LoaderOptions{}, opts...)
	return p.parsePath(ctx, localPath(src.URI), src.URI, lo.ParserOptions...)
}

func (p *Parser) parsePath(ctx context.Context, path, uri string, opts ...parser.Option) ([]*schema.Document, error) {
	common := parser.GetCommonOptions(&parser.Options{}, opts...)
	impl := parser.GetImplSpecificOptions(&options{}, opts...)

	res := p.orch.ParseOne(ctx, path)
	if res.Err != nil {
		return nil, res.Err
	}

	meta := map[string]any{
		parser.MetaKeySource: uri,
		MetaKeyBackend:       p.backendID,
		MetaKeyCached:        res.Cached,
	}
	for k, v := range common.ExtraMeta {
		meta[k] = v
	}

	if res.Skipped {
		// Already readable: hand the text through unchanged.
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		meta[MetaKeyFormat] = string(constants.FormatText)
		return []*schema.Document{{ID: uri, Content: string(b), MetaData: meta}}, nil
	}

	a := res.Artifact
	format := a.Primary
	if impl.format != "" {
		if _, ok := a.Payloads[impl.format]; !ok {
			return nil, fmt.Errorf("einoparse: %s has no %s payload (have %v)", uri, impl.format, a.Formats())
		}
		format = impl.format
	}
	meta[MetaKeyFingerprint] = res.Fingerprint.String()
	meta[MetaKeyFormat] = string(format)

	return []*schema.Document{{
		ID:       res.Fingerprint.String(),
		Content:  a.Payloads[format],
		MetaData: meta,
	}}, nil
}

func localPath(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		if u, err := url.Parse(uri); err == nil {
			return u.Path
		}
	}
	return uri
}
