package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/db"
	"github.com/sells-group/newswatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_article": `INSERT INTO articles (id, headline, url, category, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
	"grants_missing_summary": `SELECT id, topic, description, link, agency, program, close_date, created_at
		FROM grants WHERE summary IS NULL ORDER BY created_at LIMIT $1`,
	"set_grant_summary": `UPDATE grants SET summary = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id         TEXT PRIMARY KEY,
	headline   TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at DESC);

CREATE TABLE IF NOT EXISTS grants (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	description TEXT NOT NULL,
	link        TEXT NOT NULL UNIQUE,
	agency      TEXT,
	program     TEXT,
	close_date  TEXT,
	summary     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grants_missing_summary ON grants(created_at) WHERE summary IS NULL;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertArticles inserts the batch and returns only the rows that were new.
// Duplicate URLs, in the table or within the batch, are silently skipped.
func (s *PostgresStore) InsertArticles(ctx context.Context, articles []model.Article) ([]model.Article, error) {
	var inserted []model.Article
	seen := make(map[string]bool, len(articles))

	for _, a := range articles {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true

		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}

		var id string
		err := s.pool.QueryRow(ctx,
			`INSERT INTO articles (id, headline, url, category, source, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (url) DO NOTHING
			 RETURNING id`,
			a.ID, a.Headline, a.URL, string(a.Category), a.Source, a.CreatedAt,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Conflict: the url is already tracked.
				continue
			}
			return nil, eris.Wrapf(err, "postgres: insert article %s", a.URL)
		}
		inserted = append(inserted, a)
	}

	zap.L().Debug("postgres: articles inserted",
		zap.Int("batch", len(articles)),
		zap.Int("new", len(inserted)),
	)
	return inserted, nil
}

// InsertGrants bulk-loads the batch, ignoring rows whose link already
// exists. Returns the number of newly inserted rows.
func (s *PostgresStore) InsertGrants(ctx context.Context, grants []model.Grant) (int64, error) {
	rows := make([][]any, 0, len(grants))
	seen := make(map[string]bool, len(grants))
	now := time.Now().UTC()

	for _, g := range grants {
		if seen[g.Link] {
			continue
		}
		seen[g.Link] = true

		id := g.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := g.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows = append(rows, []any{id, g.Topic, g.Description, g.Link, g.Agency, g.Program, g.CloseDate, createdAt})
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "grants",
		Columns:      []string{"id", "topic", "description", "link", "agency", "program", "close_date", "created_at"},
		ConflictKeys: []string{"link"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert grants")
	}

	zap.L().Debug("postgres: grants inserted",
		zap.Int("batch", len(grants)),
		zap.Int64("new", n),
	)
	return n, nil
}

// GrantsMissingSummary returns up to selectBatchLimit grants with no summary
// yet, oldest first.
func (s *PostgresStore) GrantsMissingSummary(ctx context.Context) ([]model.Grant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, description, link, agency, program, close_date, created_at
		 FROM grants WHERE summary IS NULL ORDER BY created_at LIMIT $1`,
		selectBatchLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: grants missing summary")
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		var g model.Grant
		var agency, program, closeDate *string
		if err := rows.Scan(&g.ID, &g.Topic, &g.Description, &g.Link, &agency, &program, &closeDate, &g.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan grant")
		}
		if agency != nil {
			g.Agency = *agency
		}
		if program != nil {
			g.Program = *program
		}
		if closeDate != nil {
			g.CloseDate = *closeDate
		}
		grants = append(grants, g)
	}
	return grants, eris.Wrap(rows.Err(), "postgres: grants missing summary iterate")
}

// SetGrantSummary fills the summary column for one grant.
func (s *PostgresStore) SetGrantSummary(ctx context.Context, id string, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE grants SET summary = $1 WHERE id = $2`,
		summary, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set grant summary %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("grant not found: %s", id)
	}
	return nil
}
