package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseFields() map[string]any {
	return map[string]any{
		"do_ocr":     true,
		"to_formats": []string{"md"},
		"pipeline":   "standard",
		"page_range": []int64{1, 10},
	}
}

func TestComputeDeterministic(t *testing.T) {
	doc := []byte("%PDF-1.7 hello")
	a := Compute(doc, "docling-serve", baseFields())
	b := Compute(doc, "docling-serve", baseFields())

	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
}

func TestComputeFieldOrderIndependent(t *testing.T) {
	doc := []byte("same bytes")
	f1 := map[string]any{"a": 1, "b": "x", "c": false}
	f2 := map[string]any{"c": false, "b": "x", "a": 1}

	assert.Equal(t, Compute(doc, "docling", f1), Compute(doc, "docling", f2))
}

func TestComputeConfigSensitivity(t *testing.T) {
	doc := []byte("document")
	base := Compute(doc, "docling-serve", baseFields())

	cases := map[string]func(m map[string]any){
		"ocr flag":     func(m map[string]any) { m["do_ocr"] = false },
		"formats":      func(m map[string]any) { m["to_formats"] = []string{"md", "json"} },
		"pipeline":     func(m map[string]any) { m["pipeline"] = "vlm" },
		"page range":   func(m map[string]any) { m["page_range"] = []int64{2, 10} },
		"new field":    func(m map[string]any) { m["force_ocr"] = true },
		"removed field": func(m map[string]any) { delete(m, "pipeline") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := baseFields()
			mutate(f)
			assert.NotEqual(t, base, Compute(doc, "docling-serve", f))
		})
	}

	t.Run("backend", func(t *testing.T) {
		assert.NotEqual(t, base, Compute(doc, "llamaparse", baseFields()))
	})
	t.Run("content", func(t *testing.T) {
		assert.NotEqual(t, base, Compute([]byte("documenT"), "docling-serve", baseFields()))
	})
}

func TestComputeNilValuesIgnored(t *testing.T) {
	doc := []byte("x")
	withNil := map[string]any{"a": 1, "vlm_model": nil}
	without := map[string]any{"a": 1}

	assert.Equal(t, Compute(doc, "docling", withNil), Compute(doc, "docling", without))
}
