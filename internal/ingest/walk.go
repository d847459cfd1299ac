package ingest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPaths replaces every directory in paths with the matching files beneath it.
// Plain file arguments are kept even when unsupported so the caller reports them.
// Order is preserved: files of a directory appear in lexical order at its position.
func ExpandPaths(paths []string, skipHidden bool, logger *slog.Logger) ([]string, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []string
	var stats DirStats

	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		st, err := os.Stat(p)
		if err != nil || !st.IsDir() {
			out = append(out, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, walkErr error) error {
			stats.Scanned++
			if walkErr != nil {
				logger.Warn("walk error", "path", path, "error", walkErr)
				stats.Failed++
				return nil
			}
			if skipHidden && path != p && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				stats.Skipped++
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if !AllowedExt(filepath.Ext(path)) {
				stats.Skipped++
				return nil
			}
			stats.Matched++
			out = append(out, path)
			return nil
		})
		if err != nil {
			return out, stats, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return out, stats, nil
}
