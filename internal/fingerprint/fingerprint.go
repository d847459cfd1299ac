// Package fingerprint derives content-addressed cache keys.
//
// A fingerprint is SHA-256(SHA-256(content) || canonical(config)), where canonical is
// the JSON encoding of the backend ID plus every output-affecting option. Map keys are
// sorted by encoding/json, so two configs that differ only in field order hash equally.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

// Version is mixed into every fingerprint; bump it when the artifact encoding changes.
const Version = 1

// Keyed is implemented by anything that contributes cache-relevant settings.
type Keyed interface {
	ID() string
	CacheKey() map[string]any
}

// Compute returns the fingerprint of content parsed with the given backend settings.
func Compute(content []byte, backendID string, fields map[string]any) entity.Fingerprint {
	contentSum := sha256.Sum256(content)

	h := sha256.New()
	h.Write(contentSum[:])
	h.Write(Canonical(backendID, fields))
	return entity.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// For is Compute for a Keyed backend.
func For(content []byte, k Keyed) entity.Fingerprint {
	return Compute(content, k.ID(), k.CacheKey())
}

// Canonical encodes the effective configuration. Values that cannot be marshalled
// are encoded through their %#v form so the function never fails.
func Canonical(backendID string, fields map[string]any) []byte {
	doc := map[string]any{
		"v":       Version,
		"backend": backendID,
		"config":  normalize(fields),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return []byte(fmt.Sprintf("%d|%s|%#v", Version, backendID, fields))
	}
	return b
}

// normalize drops nil values so "absent" and "explicit null" fingerprint the same.
func normalize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
