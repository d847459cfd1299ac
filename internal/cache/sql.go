package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

const tableName = "cache_entries"

// sqlStore implements Store over database/sql. Statements are built with ent's
// dialect-aware builder so the same code serves SQLite and Postgres.
type sqlStore struct {
	db      *sql.DB
	dialect string
	driver  string
	logger  *slog.Logger
	closers []func()
}

func newSQLStore(db *sql.DB, dialectName, driver string, logger *slog.Logger) *sqlStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlStore{
		db:      db,
		dialect: dialectName,
		driver:  driver,
		logger:  logger.With("cache", driver),
	}
}

func (s *sqlStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// migrate creates the entries table if missing. The DDL is per dialect; every other
// statement goes through the ent builder.
func (s *sqlStore) migrate(ctx context.Context) error {
	blob, integer := "BLOB", "INTEGER"
	if s.dialect == dialect.Postgres {
		blob, integer = "BYTEA", "BIGINT"
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fingerprint TEXT NOT NULL PRIMARY KEY,
	backend TEXT NOT NULL,
	digest TEXT NOT NULL,
	payload %s NOT NULL,
	created_at %s NOT NULL
)`, tableName, blob, integer)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", tableName, err)
	}
	return nil
}

func (s *sqlStore) Lookup(ctx context.Context, fp entity.Fingerprint) (*entity.CacheEntry, error) {
	query, args := s.builder().
		Select("backend", "digest", "payload", "created_at").
		From(entsql.Table(tableName)).
		Where(entsql.EQ("fingerprint", fp.String())).
		Query()

	var (
		backend, digest string
		payload         []byte
		createdAt       int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&backend, &digest, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", fp.Short(), err)
	}

	artifact, verr := verify(payload, digest)
	if verr != nil {
		s.logger.Warn("cache.corrupt", "fingerprint", fp.Short(), "error", verr)
		if derr := s.delete(ctx, fp); derr != nil {
			s.logger.Error("failed to discard corrupt cache entry", "fingerprint", fp.Short(), "error", derr)
		}
		return nil, ErrMiss
	}

	return &entity.CacheEntry{
		Fingerprint: fp,
		Artifact:    artifact,
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		BackendID:   backend,
	}, nil
}

func (s *sqlStore) Insert(ctx context.Context, fp entity.Fingerprint, artifact *entity.Artifact, backendID string) error {
	payload, digest, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}

	query, args := s.builder().Insert(tableName).
		Columns("fingerprint", "backend", "digest", "payload", "created_at").
		Values(fp.String(), backendID, digest, payload, time.Now().UnixMilli()).
		OnConflict(entsql.ConflictColumns("fingerprint"), entsql.DoNothing()).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", fp.Short(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		s.logger.Debug("cache.insert", "fingerprint", fp.Short(), "backend", backendID, "bytes", len(payload))
		return nil
	}

	// Row already present: equal content is a no-op.
	query, args = s.builder().
		Select("digest").
		From(entsql.Table(tableName)).
		Where(entsql.EQ("fingerprint", fp.String())).
		Query()
	var stored string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stored); err != nil {
		return fmt.Errorf("read back %s: %w", fp.Short(), err)
	}
	if stored != digest {
		return conflictError(fp, stored, digest)
	}
	return nil
}

func (s *sqlStore) delete(ctx context.Context, fp entity.Fingerprint) error {
	query, args := s.builder().Delete(tableName).
		Where(entsql.EQ("fingerprint", fp.String())).
		Query()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqlStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	query, args := s.builder().Delete(tableName).
		Where(entsql.LT("created_at", olderThan.UnixMilli())).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	s.logger.Info("cache pruned", "removed", n, "older_than", olderThan.Format(time.RFC3339))
	return int(n), nil
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	query, args := s.builder().
		Select(entsql.Count("*"), "COALESCE(SUM(LENGTH(payload)), 0)").
		From(entsql.Table(tableName)).
		Query()
	st := Stats{Driver: s.driver}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Entries, &st.Bytes); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *sqlStore) Close() error {
	err := s.db.Close()
	for _, c := range s.closers {
		c()
	}
	return err
}
