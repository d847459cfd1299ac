// Package cache persists parsed artifacts keyed by fingerprint.
//
// Stores are content addressed: an entry is written once and never mutated. Inserting
// the same fingerprint twice with equal content is a no-op, inserting different content
// is reported as corruption and the first writer wins. Entries that fail decoding or
// digest verification on read are deleted and reported as misses.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

var (
	// ErrMiss is returned by Lookup when no usable entry exists.
	ErrMiss = common.ErrCacheMiss
	// ErrCacheCorruption marks an insert that conflicts with the stored content.
	ErrCacheCorruption = common.ErrCorruption
)

// Store is implemented by every cache backend.
type Store interface {
	Lookup(ctx context.Context, fp entity.Fingerprint) (*entity.CacheEntry, error)
	Insert(ctx context.Context, fp entity.Fingerprint, artifact *entity.Artifact, backendID string) error
	// Prune removes entries created before olderThan and returns how many were removed.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats summarises a store's contents.
type Stats struct {
	Driver  string
	Entries int64
	Bytes   int64
}

func conflictError(fp entity.Fingerprint, stored, incoming string) error {
	return fmt.Errorf("%w: fingerprint %s holds digest %.12s, insert carried %.12s",
		ErrCacheCorruption, fp.Short(), stored, incoming)
}

func encodeArtifact(a *entity.Artifact) ([]byte, string, error) {
	if a == nil {
		return nil, "", fmt.Errorf("encode artifact: nil artifact")
	}
	payload, err := a.Encode()
	if err != nil {
		return nil, "", fmt.Errorf("encode artifact: %w", err)
	}
	return payload, entity.DigestBytes(payload), nil
}

// verify decodes a stored payload, rejecting anything whose digest does not match.
func verify(payload []byte, digest string) (*entity.Artifact, error) {
	if got := entity.DigestBytes(payload); got != digest {
		return nil, fmt.Errorf("digest mismatch: stored %.12s, computed %.12s", digest, got)
	}
	a, err := entity.DecodeArtifact(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return a, nil
}
