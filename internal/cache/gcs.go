package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

// gcsObject is the JSON document stored per fingerprint.
type gcsObject struct {
	Fingerprint string          `json:"fingerprint"`
	Backend     string          `json:"backend"`
	Digest      string          `json:"digest"`
	CreatedAt   time.Time       `json:"created_at"`
	Payload     json.RawMessage `json:"payload"`
}

// GCSStore keeps one object per fingerprint under a bucket prefix. Writes are
// conditional on the object not existing, which makes inserts idempotent across hosts.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	logger *slog.Logger
	owned  bool
}

// OpenGCS creates a storage client with default credentials.
func OpenGCS(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	s := NewGCSStore(client, bucket, prefix, logger)
	s.owned = true
	return s, nil
}

// NewGCSStore wraps an existing client; Close leaves the client open.
func NewGCSStore(client *storage.Client, bucket, prefix string, logger *slog.Logger) *GCSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("cache", "gcs", "bucket", bucket),
	}
}

func (s *GCSStore) objectName(fp entity.Fingerprint) string {
	return path.Join(s.prefix, fp.String()+".json")
}

func (s *GCSStore) read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *GCSStore) Lookup(ctx context.Context, fp entity.Fingerprint) (*entity.CacheEntry, error) {
	name := s.objectName(fp)
	b, err := s.read(ctx, name)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	// Only undecodable or mismatching content counts as corruption.
	var obj gcsObject
	var artifact *entity.Artifact
	if err = json.Unmarshal(b, &obj); err != nil {
		err = fmt.Errorf("decode object: %w", err)
	} else {
		artifact, err = verify(obj.Payload, obj.Digest)
	}
	if err != nil {
		s.logger.Warn("cache.corrupt", "fingerprint", fp.Short(), "object", name, "error", err)
		if derr := s.bucket.Object(name).Delete(ctx); derr != nil && !errors.Is(derr, storage.ErrObjectNotExist) {
			s.logger.Error("failed to discard corrupt cache object", "object", name, "error", derr)
		}
		return nil, ErrMiss
	}

	return &entity.CacheEntry{
		Fingerprint: fp,
		Artifact:    artifact,
		CreatedAt:   obj.CreatedAt,
		BackendID:   obj.Backend,
	}, nil
}

func (s *GCSStore) Insert(ctx context.Context, fp entity.Fingerprint, artifact *entity.Artifact, backendID string) error {
	payload, digest, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	body, err := json.Marshal(gcsObject{
		Fingerprint: fp.String(),
		Backend:     backendID,
		Digest:      digest,
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}

	name := s.objectName(fp)
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"digest": digest, "backend": backendID}

	_, werr := w.Write(body)
	cerr := w.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		s.logger.Debug("cache.insert", "fingerprint", fp.Short(), "object", name)
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(werr, &gerr) || gerr.Code != http.StatusPreconditionFailed {
		return fmt.Errorf("write %s: %w", name, werr)
	}

	// Already present: compare with what the first writer stored.
	attrs, err := s.bucket.Object(name).Attrs(ctx)
	if err != nil {
		return fmt.Errorf("read back %s: %w", name, err)
	}
	if stored := attrs.Metadata["digest"]; stored != digest {
		return conflictError(fp, stored, digest)
	}
	return nil
}

func (s *GCSStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.listPrefix()})
	n := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("list objects: %w", err)
		}
		if !attrs.Created.Before(olderThan) {
			continue
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return n, fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
		n++
	}
	s.logger.Info("cache pruned", "removed", n, "older_than", olderThan.Format(time.RFC3339))
	return n, nil
}

func (s *GCSStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Driver: "gcs"}
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.listPrefix()})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return Stats{}, fmt.Errorf("list objects: %w", err)
		}
		st.Entries++
		st.Bytes += attrs.Size
	}
	return st, nil
}

func (s *GCSStore) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *GCSStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
