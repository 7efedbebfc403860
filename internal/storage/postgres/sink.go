// Package postgres provides a Postgres-backed crawl Sink.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/spider/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	SiteTable       string
	LinkTable       string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Sink writes sites and links into Postgres.
type Sink struct {
	pool      queryExecCloser
	siteTable string
	linkTable string
}

// New connects to Postgres using the provided config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sink, err := NewWithPool(pool, cfg.SiteTable, cfg.LinkTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewWithPool constructs a Sink from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser, siteTable, linkTable string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if siteTable == "" {
		siteTable = "site"
	}
	if linkTable == "" {
		linkTable = "link"
	}
	for _, table := range []string{siteTable, linkTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Sink{pool: pool, siteTable: siteTable, linkTable: linkTable}, nil
}

// Ping checks connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the site and link tables when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id      BIGSERIAL PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	domain  TEXT NOT NULL UNIQUE,
	use_ssl BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS %[2]s (
	id         BIGSERIAL PRIMARY KEY,
	link       TEXT NOT NULL,
	size       BIGINT NOT NULL DEFAULT 0,
	site_id    BIGINT NOT NULL REFERENCES %[1]s (id),
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, s.siteTable, s.linkTable)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSite upserts a site keyed by domain and returns its id.
func (s *Sink) SaveSite(ctx context.Context, site storage.Site) (int64, error) {
	if site.Domain == "" {
		return 0, fmt.Errorf("site domain is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (name, domain, use_ssl)
VALUES ($1, $2, $3)
ON CONFLICT (domain) DO UPDATE
SET name = EXCLUDED.name, use_ssl = EXCLUDED.use_ssl
RETURNING id`, s.siteTable)

	var id int64
	if err := s.pool.QueryRow(ctx, query, site.Name, site.Domain, site.UseSSL).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert site: %w", err)
	}
	return id, nil
}

// SaveLink inserts a link row for siteID and returns its id.
func (s *Sink) SaveLink(ctx context.Context, siteID int64, link storage.Link) (int64, error) {
	fetchedAt := link.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (link, size, site_id, fetched_at)
VALUES ($1, $2, $3, $4)
RETURNING id`, s.linkTable)

	var id int64
	if err := s.pool.QueryRow(ctx, query, link.Path, link.Size, siteID, fetchedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert link: %w", err)
	}
	return id, nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var _ storage.Sink = (*Sink)(nil)
