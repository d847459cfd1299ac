// Package config locates, validates and decodes backend config files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docparse/internal/common"
)

// Candidates returns the paths searched for name, in precedence order.
// An explicit path, when given, is the only candidate.
func Candidates(explicit, name string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	out := []string{name}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, name))
	}
	return out
}

// Load decodes the first config file found into dst, which should already hold the
// defaults: fields absent from the file keep them. The first file found is
// authoritative, later candidates are not merged in. It returns the path used, or ""
// when no file exists. A missing explicit path is an error.
func Load(explicit, name string, schema []byte, dst any, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range Candidates(explicit, name) {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			if explicit != "" {
				return "", common.NewAppError("CONFIG_ERROR", "config file not found: "+explicit, common.ErrNotFound)
			}
			continue
		}
		if err != nil {
			return "", common.NewAppError("CONFIG_ERROR", "read "+p, err)
		}
		if err := Decode(data, schema, dst); err != nil {
			return "", common.NewAppError("CONFIG_ERROR", "invalid config "+p, err)
		}
		logger.Debug("config loaded", "path", p)
		return p, nil
	}
	logger.Debug("no config file found, using defaults", "name", name)
	return "", nil
}

// Decode validates data against schema (when non-empty) and unmarshals it into dst.
func Decode(data, schema []byte, dst any) error {
	if len(schema) > 0 {
		if err := Validate(schema, data); err != nil {
			return err
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Validate checks a JSON document against a JSON schema.
func Validate(schema, data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
