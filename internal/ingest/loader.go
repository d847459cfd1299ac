package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

// DefaultMaxSize rejects inputs no backend would accept anyway.
const DefaultMaxSize int64 = 512 << 20

// Loader reads documents from disk.
type Loader struct {
	// InspectPDF opens PDFs with pdfcpu to count pages and reject broken files early.
	InspectPDF bool
	MaxSize    int64
	logger     *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{InspectPDF: true, MaxSize: DefaultMaxSize, logger: logger}
}

// LoadDocument loads path with the default loader.
func LoadDocument(path string) (*entity.Document, error) {
	return NewLoader(nil).Load(path)
}

// Load stats and reads path. Missing or unreadable files are InvalidDocument,
// extensions no backend accepts are UnsupportedFormat.
func (l *Loader) Load(path string) (*entity.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, invalid(path, fmt.Errorf("abs path: %w", err))
	}

	st, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, invalid(path, fmt.Errorf("file not found"))
	}
	if err != nil {
		return nil, invalid(path, err)
	}
	if st.IsDir() {
		return nil, invalid(path, fmt.Errorf("is a directory"))
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	family := constants.MapExtToFamily(ext)
	if family == "" && !constants.IsReadableExt(ext) {
		je := common.JobErrorf(constants.KindUnsupported, "unsupported or missing extension %q", ext)
		je.Path = path
		return nil, je
	}
	if l.MaxSize > 0 && st.Size() > l.MaxSize {
		return nil, invalid(path, fmt.Errorf("file is %d bytes, limit is %d", st.Size(), l.MaxSize))
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, invalid(path, fmt.Errorf("read: %w", err))
	}

	doc := &entity.Document{
		Path:       path,
		Name:       filepath.Base(abs),
		Ext:        ext,
		Family:     family,
		Size:       st.Size(),
		ModifiedAt: st.ModTime(),
		Content:    content,
	}

	if family == constants.FamilyPDF && l.InspectPDF {
		pages, err := api.PageCountFile(abs)
		if err != nil {
			l.logger.Warn("pdf inspection failed", "path", path, "error", err)
			return nil, invalid(path, fmt.Errorf("unreadable pdf: %w", err))
		}
		doc.Pages = pages
	}
	return doc, nil
}

func invalid(path string, err error) error {
	je := common.NewJobError(constants.KindInvalidDocument, err)
	je.Path = path
	return je
}
