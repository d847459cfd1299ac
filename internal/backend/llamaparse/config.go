package llamaparse

import (
	_ "embed"
	"os"

	"github.com/joseph-ayodele/docparse/internal/backend"
)

const ConfigFileName = ".parse_config.json"

//go:embed schema.json
var Schema []byte

// Config for the LlamaParse cloud API.
type Config struct {
	APIKey             string   `json:"api_key,omitempty"`
	BaseURL            string   `json:"base_url"`
	ResultType         string   `json:"result_type"`
	Language           string   `json:"language"`
	ParsingInstruction string   `json:"parsing_instruction"`
	PremiumMode        bool     `json:"premium_mode"`
	FastMode           bool     `json:"fast_mode"`
	DisableOCR         bool     `json:"disable_ocr"`
	TargetPages        string   `json:"target_pages"`
	PageSeparator      string   `json:"page_separator"`
	ExtraFormats       []string `json:"extra_formats"`
	DocumentTimeout    float64  `json:"document_timeout"`
	AbortOnError       bool     `json:"abort_on_error"`
	PollInterval       float64  `json:"poll_interval"`
	MaxPollAttempts    int      `json:"max_poll_attempts"`
	MaxConcurrency     int      `json:"max_concurrency"`
	MaxRetries         int      `json:"max_retries"`
	RetryBaseDelay     float64  `json:"retry_base_delay"`
	RequestsPerSecond  float64  `json:"requests_per_second"`
	OutputDir          string   `json:"output_dir,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		APIKey:          os.Getenv("LLAMA_CLOUD_API_KEY"),
		BaseURL:         "https://api.cloud.llamaindex.ai",
		ResultType:      "markdown",
		Language:        "en",
		DocumentTimeout: 1800,
		PollInterval:    2,
		MaxPollAttempts: 900,
		MaxConcurrency:  4,
		MaxRetries:      5,
		RetryBaseDelay:  1,
	}
}

func (c Config) CacheKey() map[string]any {
	extra := c.ExtraFormats
	if extra == nil {
		extra = []string{}
	}
	return map[string]any{
		"result_type":         c.ResultType,
		"language":            c.Language,
		"parsing_instruction": c.ParsingInstruction,
		"premium_mode":        c.PremiumMode,
		"fast_mode":           c.FastMode,
		"disable_ocr":         c.DisableOCR,
		"target_pages":        c.TargetPages,
		"page_separator":      c.PageSeparator,
		"extra_formats":       extra,
	}
}

func (c Config) Runtime() backend.Runtime {
	rt := backend.DefaultRuntime()
	rt.PollInterval = backend.Seconds(c.PollInterval)
	rt.MaxPollAttempts = c.MaxPollAttempts
	rt.DocumentTimeout = backend.Seconds(c.DocumentTimeout)
	rt.AbortOnError = c.AbortOnError
	if c.MaxConcurrency > 0 {
		rt.MaxConcurrency = c.MaxConcurrency
	}
	rt.MaxRetries = c.MaxRetries
	if c.RetryBaseDelay > 0 {
		rt.RetryBaseDelay = backend.Seconds(c.RetryBaseDelay)
	}
	rt.RequestsPerSecond = c.RequestsPerSecond
	return rt
}

func (c Config) formData() *backend.Form {
	f := backend.NewForm().
		Add("language", c.Language).
		AddBool("premium_mode", c.PremiumMode).
		AddBool("fast_mode", c.FastMode).
		AddBool("disable_ocr", c.DisableOCR)
	if c.ParsingInstruction != "" {
		f.Add("parsing_instruction", c.ParsingInstruction)
	}
	if c.TargetPages != "" {
		f.Add("target_pages", c.TargetPages)
	}
	if c.PageSeparator != "" {
		f.Add("page_separator", c.PageSeparator)
	}
	return f
}
