package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/docparse/constants"
)

// Fingerprint is the hex SHA-256 cache key of a (document, effective config) pair.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short is the abbreviated form used in log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// Artifact is the parsed output of one document: one payload per requested format.
type Artifact struct {
	Primary  constants.Format            `json:"primary"`
	Payloads map[constants.Format]string `json:"payloads"`
}

// NewArtifact builds a single-payload artifact.
func NewArtifact(format constants.Format, content string) *Artifact {
	return &Artifact{
		Primary:  format,
		Payloads: map[constants.Format]string{format: content},
	}
}

// Add stores a payload; markdown always becomes primary, otherwise the first one added wins.
func (a *Artifact) Add(format constants.Format, content string) {
	if a.Payloads == nil {
		a.Payloads = make(map[constants.Format]string)
	}
	a.Payloads[format] = content
	if a.Primary == "" || format == constants.FormatMarkdown {
		a.Primary = format
	}
}

// PrimaryContent returns the payload of the primary format.
func (a *Artifact) PrimaryContent() string {
	if a == nil {
		return ""
	}
	return a.Payloads[a.Primary]
}

// Formats lists the payload formats in a stable order.
func (a *Artifact) Formats() []constants.Format {
	out := make([]constants.Format, 0, len(a.Payloads))
	for f := range a.Payloads {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Empty reports whether no payload carries any content.
func (a *Artifact) Empty() bool {
	if a == nil {
		return true
	}
	for _, p := range a.Payloads {
		if p != "" {
			return false
		}
	}
	return true
}

// Encode is the canonical serialization (map keys are sorted by encoding/json).
func (a *Artifact) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// Digest is the hex SHA-256 of the canonical encoding.
func (a *Artifact) Digest() string {
	b, err := a.Encode()
	if err != nil {
		return ""
	}
	return DigestBytes(b)
}

// Equal compares artifacts by content.
func (a *Artifact) Equal(b *Artifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Digest() == b.Digest()
}

// artifactJSON is the wire form. Payloads that are not valid UTF-8 travel base64 encoded
// under "raw", since encoding/json would replace their invalid bytes.
type artifactJSON struct {
	Primary  constants.Format            `json:"primary"`
	Payloads map[constants.Format]string `json:"payloads"`
	Raw      map[constants.Format][]byte `json:"raw,omitempty"`
}

func (a Artifact) MarshalJSON() ([]byte, error) {
	w := artifactJSON{Primary: a.Primary, Payloads: make(map[constants.Format]string, len(a.Payloads))}
	for f, p := range a.Payloads {
		if utf8.ValidString(p) {
			w.Payloads[f] = p
			continue
		}
		if w.Raw == nil {
			w.Raw = make(map[constants.Format][]byte)
		}
		w.Raw[f] = []byte(p)
	}
	return json.Marshal(w)
}

func (a *Artifact) UnmarshalJSON(b []byte) error {
	var w artifactJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	a.Primary = w.Primary
	a.Payloads = make(map[constants.Format]string, len(w.Payloads)+len(w.Raw))
	for f, p := range w.Payloads {
		a.Payloads[f] = p
	}
	for f, p := range w.Raw {
		a.Payloads[f] = string(p)
	}
	return nil
}

// DecodeArtifact parses the canonical encoding.
func DecodeArtifact(b []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DigestBytes returns the hex SHA-256 of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CacheEntry is owned by the cache store; entries are never mutated once written.
type CacheEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Artifact    *Artifact   `json:"artifact"`
	CreatedAt   time.Time   `json:"created_at"`
	BackendID   string      `json:"backend_id"`
}
