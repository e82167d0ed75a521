// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "leaders"

// LeaderStoreConfig controls the Postgres connection pool used for leader rows.
type LeaderStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LeaderStore writes enriched leaders into Postgres, one row per leader per run.
type LeaderStore struct {
	pool  execCloser
	table string
}

// NewLeaderStore creates a Postgres-backed LeaderStore using the provided config.
func NewLeaderStore(ctx context.Context, cfg LeaderStoreConfig) (*LeaderStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	return &LeaderStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewLeaderStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeaderStoreWithPool(pool execCloser, table string) (*LeaderStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LeaderStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *LeaderStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureTable creates the leaders table when it does not exist yet.
func (s *LeaderStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT        NOT NULL,
	country_code    TEXT        NOT NULL,
	position        INTEGER     NOT NULL,
	leader_id       TEXT        NOT NULL,
	first_name      TEXT,
	last_name       TEXT,
	birth_date      TEXT,
	death_date      TEXT,
	place_of_birth  TEXT,
	wikipedia_url   TEXT,
	start_mandate   TEXT,
	end_mandate     TEXT,
	first_paragraph TEXT,
	scraped_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, country_code, leader_id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveLeaders upserts every leader in data under runID and returns the number
// of rows written.
func (s *LeaderStore) SaveLeaders(
	ctx context.Context,
	runID string,
	scrapedAt time.Time,
	data *scraper.LeadersByCountry,
) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("leader store is not configured")
	}
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	if data == nil {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	country_code,
	position,
	leader_id,
	first_name,
	last_name,
	birth_date,
	death_date,
	place_of_birth,
	wikipedia_url,
	start_mandate,
	end_mandate,
	first_paragraph,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (run_id, country_code, leader_id) DO UPDATE SET
	position = EXCLUDED.position,
	first_paragraph = EXCLUDED.first_paragraph,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	var (
		rows   int
		insErr error
	)
	data.Each(func(code string, index int, l *scraper.Leader) {
		if insErr != nil || l == nil {
			return
		}
		_, err := s.pool.Exec(ctx, query,
			runID,
			code,
			index,
			l.ID,
			l.FirstName,
			l.LastName,
			l.BirthDate,
			l.DeathDate,
			l.PlaceOfBirth,
			l.WikipediaURL,
			l.StartMandate,
			l.EndMandate,
			l.FirstParagraph,
			scrapedAt,
		)
		if err != nil {
			insErr = fmt.Errorf("insert leader %s (%s): %w", l.ID, code, err)
			return
		}
		rows++
	})
	return rows, insErr
}
