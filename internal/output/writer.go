// Package output materialises parsed artifacts as plain files next to a metadata record,
// so other tools can read results without going through the cache store.
package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

// DefaultDirName is created under the user's home directory when no output dir is configured.
const DefaultDirName = ".parse"

// Metadata is written as <name>.metadata.json beside the parsed files.
type Metadata struct {
	ModifiedTime int64  `json:"modified_time"`
	Size         int64  `json:"size"`
	ParsedPath   string `json:"parsed_path"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Backend      string `json:"backend,omitempty"`
}

type Writer struct {
	Dir    string
	logger *slog.Logger
}

// DefaultDir resolves ~/.parse, falling back to ./.parse without a home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = DefaultDir()
	}
	return &Writer{Dir: dir, logger: logger}
}

// Write stores one file per payload as <base name of source>.<ext> and returns the path
// of the primary payload. Files are written to a temp name and renamed into place.
func (w *Writer) Write(source string, fp entity.Fingerprint, backendID string, a *entity.Artifact) (string, error) {
	if a == nil || a.Empty() {
		return "", fmt.Errorf("write %s: empty artifact", source)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := filepath.Base(source)

	var primary string
	for _, f := range a.Formats() {
		content := a.Payloads[f]
		if content == "" {
			continue
		}
		p := w.PathFor(source, f)
		if err := writeAtomic(p, []byte(content)); err != nil {
			return "", fmt.Errorf("write %s output: %w", f, err)
		}
		w.logger.Debug("output.write", "path", p, "format", f, "bytes", len(content))
		if f == a.Primary || primary == "" {
			primary = p
		}
	}

	meta := Metadata{ParsedPath: primary, Fingerprint: fp.String(), Backend: backendID}
	if st, err := os.Stat(source); err == nil {
		meta.ModifiedTime = st.ModTime().Unix()
		meta.Size = st.Size()
	} else {
		w.logger.Warn("output.stat_source_failed", "path", source, "error", err)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, name+".metadata.json"), b); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return primary, nil
}

// PathFor is where the payload of format f for source is written.
func (w *Writer) PathFor(source string, f constants.Format) string {
	return filepath.Join(w.Dir, filepath.Base(source)+"."+f.FileExt())
}

// ReadMetadata loads the metadata record written for source, if any.
func (w *Writer) ReadMetadata(source string) (*Metadata, error) {
	b, err := os.ReadFile(filepath.Join(w.Dir, filepath.Base(source)+".metadata.json"))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// Fresh reports whether the outputs recorded for source still match its size and mtime.
func (w *Writer) Fresh(source string) (string, bool) {
	m, err := w.ReadMetadata(source)
	if err != nil {
		return "", false
	}
	st, err := os.Stat(source)
	if err != nil || st.Size() != m.Size || st.ModTime().Unix() != m.ModifiedTime {
		return "", false
	}
	if _, err := os.Stat(m.ParsedPath); err != nil {
		return "", false
	}
	return m.ParsedPath, true
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
