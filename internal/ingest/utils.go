package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docparse/constants"
)

// AllowedExt reports whether ext is submitted to a backend or passed through as readable.
func AllowedExt(ext string) bool {
	return constants.MapExtToFamily(ext) != "" || constants.IsReadableExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
