package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xhad/recall/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	VectorDim  int
	MaxConns   int32
}

// VectorStore is the PostgreSQL + pgvector chunk store. It implements
// types.SearchStore, types.ClusterStore and types.DocumentStore.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var (
	_ types.SearchStore   = (*VectorStore)(nil)
	_ types.ClusterStore  = (*VectorStore)(nil)
	_ types.DocumentStore = (*VectorStore)(nil)
)

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(vs *VectorStore) {
		if logger != nil {
			vs.logger = logger
		}
	}
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, opts ...Option) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("%w: database connection string is required", types.ErrInvalidInput)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection string: %v", types.ErrInvalidInput, err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapErr("connect to database", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(vs)
	}
	vs.logger = vs.logger.With("component", "store")

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapErr("connect to database", err)
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func schema(vectorDim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS orgs (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id BIGSERIAL PRIMARY KEY,
			org_id BIGINT NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			UNIQUE (org_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS calls (
			id BIGSERIAL PRIMARY KEY,
			org_id BIGINT NOT NULL REFERENCES orgs(id),
			project_id BIGINT REFERENCES projects(id) ON DELETE SET NULL,
			title TEXT,
			call_date DATE NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'transcript',
			source_file TEXT,
			summary TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS calls_source_file_idx ON calls (source_file)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			call_id BIGINT NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
			chunk_idx INTEGER NOT NULL,
			speaker TEXT,
			text TEXT NOT NULL,
			embedding vector(%d),
			search_vector tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
			UNIQUE (call_id, chunk_idx)
		)`, vectorDim),
		`CREATE INDEX IF NOT EXISTS chunks_search_vector_idx ON chunks USING GIN (search_vector)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS chunk_clusters (
			chunk_id BIGINT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
			scope TEXT NOT NULL,
			cluster_id INTEGER NOT NULL,
			PRIMARY KEY (scope, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS chunk_clusters_cluster_idx ON chunk_clusters (scope, cluster_id)`,
		`CREATE TABLE IF NOT EXISTS cluster_runs (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			clusters INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS cluster_runs_scope_idx ON cluster_runs (scope, created_at DESC)`,
		`CREATE OR REPLACE VIEW chunks_with_context AS
			SELECT ch.id, ch.call_id, ch.chunk_idx, ch.speaker, ch.text,
				ch.embedding, ch.search_vector,
				c.title, c.call_date, c.summary, c.source_type,
				o.name AS org_name, p.name AS project_name
			FROM chunks ch
			JOIN calls c ON c.id = ch.call_id
			JOIN orgs o ON o.id = c.org_id
			LEFT JOIN projects p ON p.id = c.project_id`,
	}
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	for _, stmt := range schema(vs.config.VectorDim) {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return wrapErr("initialize schema", err)
		}
	}
	vs.logger.Debug("schema ready", "vector_dim", vs.config.VectorDim)
	return nil
}

// Ping checks that the database is reachable.
func (vs *VectorStore) Ping(ctx context.Context) error {
	if err := vs.pool.Ping(ctx); err != nil {
		return wrapErr("ping database", err)
	}
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// wrapErr marks connection-level failures as types.ErrDependencyUnavailable.
func wrapErr(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: failed to %s: %w", types.ErrDependencyUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUnavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
