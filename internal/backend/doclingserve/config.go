package doclingserve

import (
	_ "embed"
	"os"
	"strconv"

	"github.com/joseph-ayodele/docparse/internal/backend"
)

// ConfigFileName is searched in the working directory, then the home directory.
const ConfigFileName = ".docling_serve_config.json"

//go:embed schema.json
var Schema []byte

// Config mirrors the docling-serve config file. Field names match the file keys.
type Config struct {
	BaseURL                 string   `json:"base_url"`
	APIKey                  string   `json:"api_key,omitempty"`
	UseOCR                  bool     `json:"use_ocr"`
	ForceOCR                bool     `json:"force_ocr"`
	OCREngine               string   `json:"ocr_engine"`
	OCRLanguages            []string `json:"ocr_languages"`
	PDFBackend              string   `json:"pdf_backend"`
	TableMode               string   `json:"table_mode"`
	EnableTableStructure    bool     `json:"enable_table_structure"`
	TableCellMatching       bool     `json:"table_cell_matching"`
	IncludeImages           bool     `json:"include_images"`
	ImageScale              float64  `json:"image_scale"`
	ImageExportMode         string   `json:"image_export_mode"`
	DoCodeEnrichment        bool     `json:"do_code_enrichment"`
	DoFormulaEnrichment     bool     `json:"do_formula_enrichment"`
	DoPictureClassification bool     `json:"do_picture_classification"`
	DoPictureDescription    bool     `json:"do_picture_description"`
	ProcessingPipeline      string   `json:"processing_pipeline"`
	DocumentTimeout         float64  `json:"document_timeout"`
	AbortOnError            bool     `json:"abort_on_error"`
	UseAsync                bool     `json:"use_async"`
	PollInterval            float64  `json:"poll_interval"`
	MaxPollAttempts         int      `json:"max_poll_attempts"`
	ToFormats               []string `json:"to_formats"`
	FromFormats             []string `json:"from_formats"`
	PageRange               []int64  `json:"page_range,omitempty"`
	MDPageBreakPlaceholder  string   `json:"md_page_break_placeholder"`
	OutputDir               string   `json:"output_dir,omitempty"`
	MaxConcurrency          int      `json:"max_concurrency"`
	MaxRetries              int      `json:"max_retries"`
	RetryBaseDelay          float64  `json:"retry_base_delay"`
	RequestsPerSecond       float64  `json:"requests_per_second"`
}

// DefaultConfig returns the docling-serve defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "http://localhost:5001",
		APIKey:               os.Getenv("DOCLING_SERVE_API_KEY"),
		OCREngine:            "easyocr",
		PDFBackend:           "dlparse_v4",
		TableMode:            "accurate",
		EnableTableStructure: true,
		TableCellMatching:    true,
		ImageScale:           2.0,
		ImageExportMode:      "embedded",
		ProcessingPipeline:   "standard",
		DocumentTimeout:      604800,
		PollInterval:         5,
		MaxPollAttempts:      60,
		ToFormats:            []string{"md"},
		FromFormats:          []string{"docx", "pptx", "html", "image", "pdf", "asciidoc", "md"},
		MaxConcurrency:       10,
		MaxRetries:           3,
		RetryBaseDelay:       1,
	}
}

// CacheKey lists every setting that can change what the server returns.
// Credentials, polling and retry settings are deliberately absent.
func (c Config) CacheKey() map[string]any {
	key := map[string]any{
		"do_ocr":                    c.UseOCR,
		"force_ocr":                 c.ForceOCR,
		"ocr_engine":                c.OCREngine,
		"ocr_lang":                  nonNil(c.OCRLanguages),
		"pdf_backend":               c.PDFBackend,
		"table_mode":                c.TableMode,
		"do_table_structure":        c.EnableTableStructure,
		"table_cell_matching":       c.TableCellMatching,
		"include_images":            c.IncludeImages,
		"images_scale":              c.ImageScale,
		"image_export_mode":         c.ImageExportMode,
		"do_code_enrichment":        c.DoCodeEnrichment,
		"do_formula_enrichment":     c.DoFormulaEnrichment,
		"do_picture_classification": c.DoPictureClassification,
		"do_picture_description":    c.DoPictureDescription,
		"pipeline":                  c.ProcessingPipeline,
		"to_formats":                nonNil(c.ToFormats),
		"from_formats":              nonNil(c.FromFormats),
		"md_page_break_placeholder": c.MDPageBreakPlaceholder,
	}
	if len(c.PageRange) == 2 {
		key["page_range"] = c.PageRange
	}
	return key
}

// Runtime extracts the scheduling settings.
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

// formData renders the conversion parameters. List parameters repeat their key.
func (c Config) formData() *backend.Form {
	f := backend.NewForm().
		AddBool("do_ocr", c.UseOCR).
		AddBool("force_ocr", c.ForceOCR).
		AddBool("do_table_structure", c.EnableTableStructure).
		AddBool("table_cell_matching", c.TableCellMatching).
		AddBool("include_images", c.IncludeImages).
		AddBool("do_code_enrichment", c.DoCodeEnrichment).
		AddBool("do_formula_enrichment", c.DoFormulaEnrichment).
		AddBool("do_picture_classification", c.DoPictureClassification).
		AddBool("do_picture_description", c.DoPictureDescription).
		AddBool("abort_on_error", c.AbortOnError).
		Add("ocr_engine", c.OCREngine).
		Add("pdf_backend", c.PDFBackend).
		Add("table_mode", c.TableMode).
		Add("pipeline", c.ProcessingPipeline).
		Add("image_export_mode", c.ImageExportMode)
	if c.MDPageBreakPlaceholder != "" {
		f.Add("md_page_break_placeholder", c.MDPageBreakPlaceholder)
	}
	f.AddFloat("images_scale", c.ImageScale).
		AddFloat("document_timeout", c.DocumentTimeout).
		AddAll("ocr_lang", c.OCRLanguages).
		AddAll("to_formats", c.ToFormats).
		AddAll("from_formats", c.FromFormats)
	if len(c.PageRange) == 2 {
		f.Add("page_range", formatInt(c.PageRange[0])).
			Add("page_range", formatInt(c.PageRange[1]))
	}
	return f
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
