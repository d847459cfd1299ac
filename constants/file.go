package constants

import "strings"

// Family groups input extensions the way parsing backends accept them (docling's from_formats).
type Family string

const (
	FamilyPDF      Family = "pdf"
	FamilyDOCX     Family = "docx"
	FamilyPPTX     Family = "pptx"
	FamilyXLSX     Family = "xlsx"
	FamilyHTML     Family = "html"
	FamilyImage    Family = "image"
	FamilyAsciiDoc Family = "asciidoc"
	FamilyMarkdown Family = "md"
	FamilyCSV      Family = "csv"
)

// Format is an output payload format of a parsed artifact.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatDocTags  Format = "doctags"
)

// FileExt maps an output format to the extension used on disk.
func (f Format) FileExt() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// ParseFormat accepts the names used in config files ("md", "markdown", "txt", ...).
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, true
	case "json":
		return FormatJSON, true
	case "html":
		return FormatHTML, true
	case "text", "txt":
		return FormatText, true
	case "doctags":
		return FormatDocTags, true
	}
	return "", false
}

// SupportedExtensions holds the input extensions the pipeline will submit to a backend.
var SupportedExtensions = map[string]Family{
	"pdf":      FamilyPDF,
	"docx":     FamilyDOCX,
	"doc":      FamilyDOCX,
	"pptx":     FamilyPPTX,
	"ppt":      FamilyPPTX,
	"xlsx":     FamilyXLSX,
	"xls":      FamilyXLSX,
	"html":     FamilyHTML,
	"htm":      FamilyHTML,
	"xhtml":    FamilyHTML,
	"png":      FamilyImage,
	"jpg":      FamilyImage,
	"jpeg":     FamilyImage,
	"tif":      FamilyImage,
	"tiff":     FamilyImage,
	"bmp":      FamilyImage,
	"webp":     FamilyImage,
	"adoc":     FamilyAsciiDoc,
	"asciidoc": FamilyAsciiDoc,
	"md":       FamilyMarkdown,
	"csv":      FamilyCSV,
}

// ReadableExtensions are already grep-able; with skip_readable they are passed through as-is.
var ReadableExtensions = map[string]struct{}{
	"txt":  {},
	"md":   {},
	"csv":  {},
	"json": {},
	"yaml": {},
	"yml":  {},
	"xml":  {},
	"log":  {},
	"rst":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFamily returns "" for extensions no backend accepts.
func MapExtToFamily(ext string) Family {
	return SupportedExtensions[NormalizeExt(ext)]
}

// IsReadableExt reports whether ext names a plain-text format.
func IsReadableExt(ext string) bool {
	_, ok := ReadableExtensions[NormalizeExt(ext)]
	return ok
}
