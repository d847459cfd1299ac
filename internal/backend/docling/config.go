package docling

import (
	_ "embed"

	"github.com/joseph-ayodele/docparse/internal/backend"
)

const ConfigFileName = ".docling_config.json"

//go:embed schema.json
var Schema []byte

// Config for the local docling CLI.
type Config struct {
	Command         string   `json:"command"`
	UseOCR          bool     `json:"use_ocr"`
	VLMModel        string   `json:"vlm_model,omitempty"`
	OutputFormat    string   `json:"output_format"`
	ExtraArgs       []string `json:"extra_args"`
	EnableTables    bool     `json:"enable_tables"`
	EnableImages    bool     `json:"enable_images"`
	DocumentTimeout float64  `json:"document_timeout"`
	AbortOnError    bool     `json:"abort_on_error"`
	MaxConcurrency  int      `json:"max_concurrency"`
	OutputDir       string   `json:"output_dir,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Command:         "docling",
		UseOCR:          true,
		OutputFormat:    "md",
		EnableTables:    true,
		EnableImages:    true,
		DocumentTimeout: 3600,
		MaxConcurrency:  2,
	}
}

func (c Config) CacheKey() map[string]any {
	extra := c.ExtraArgs
	if extra == nil {
		extra = []string{}
	}
	return map[string]any{
		"use_ocr":       c.UseOCR,
		"vlm_model":     c.VLMModel,
		"output_format": c.OutputFormat,
		"extra_args":    extra,
		"enable_tables": c.EnableTables,
		"enable_images": c.EnableImages,
	}
}

// Runtime for a local backend: no polling and no retries, since a failed run is
// deterministic for the same input.
func (c Config) Runtime() backend.Runtime {
	rt := backend.DefaultRuntime()
	rt.DocumentTimeout = backend.Seconds(c.DocumentTimeout)
	rt.AbortOnError = c.AbortOnError
	rt.MaxRetries = 0
	if c.MaxConcurrency > 0 {
		rt.MaxConcurrency = c.MaxConcurrency
	}
	return rt
}

// args builds the docling CLI invocation.
func (c Config) args(input, outputDir string) []string {
	args := []string{input, "--to", c.OutputFormat, "--output", outputDir}
	if !c.UseOCR {
		args = append(args, "--no-ocr")
	}
	if !c.EnableTables {
		args = append(args, "--no-tables")
	}
	if c.EnableImages {
		args = append(args, "--image-export-mode", "embedded")
	} else {
		args = append(args, "--image-export-mode", "placeholder")
	}
	if c.VLMModel != "" {
		args = append(args, "--pipeline", "vlm", "--vlm-model", c.VLMModel)
	}
	return append(args, c.ExtraArgs...)
}
