package backend

import (
	"bytes"
	"mime/multipart"
	"strconv"
)

type formField struct {
	key, value string
}

type formFile struct {
	field, name string
	content     []byte
}

// Form collects multipart fields in insertion order. Repeated keys are sent as
// repeated parts, which is how list parameters are passed to docling-serve.
type Form struct {
	fields []formField
	files  []formFile
}

func NewForm() *Form { return &Form{} }

func (f *Form) Add(key, value string) *Form {
	f.fields = append(f.fields, formField{key, value})
	return f
}

func (f *Form) AddBool(key string, v bool) *Form {
	return f.Add(key, strconv.FormatBool(v))
}

func (f *Form) AddFloat(key string, v float64) *Form {
	return f.Add(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// AddAll adds one part per value.
func (f *Form) AddAll(key string, values []string) *Form {
	for _, v := range values {
		f.Add(key, v)
	}
	return f
}

func (f *Form) AddFile(field, filename string, content []byte) *Form {
	f.files = append(f.files, formFile{field, filename, content})
	return f
}

// Values returns every value recorded for key.
func (f *Form) Values(key string) []string {
	var out []string
	for _, fl := range f.fields {
		if fl.key == key {
			out = append(out, fl.value)
		}
	}
	return out
}

// Encode renders the form body and its content type.
func (f *Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", err
		}
	}
	for _, fl := range f.fields {
		if err := w.WriteField(fl.key, fl.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
