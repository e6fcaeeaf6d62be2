package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/newswatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and tests; production runs on Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id         TEXT PRIMARY KEY,
	headline   TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);

CREATE TABLE IF NOT EXISTS grants (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	description TEXT NOT NULL,
	link        TEXT NOT NULL UNIQUE,
	agency      TEXT,
	program     TEXT,
	close_date  TEXT,
	summary     TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_grants_missing_summary ON grants(created_at) WHERE summary IS NULL;
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertArticles(ctx context.Context, articles []model.Article) ([]model.Article, error) {
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

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO articles (id, headline, url, category, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (url) DO NOTHING`,
			a.ID, a.Headline, a.URL, string(a.Category), a.Source, a.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert article %s", a.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n > 0 {
			inserted = append(inserted, a)
		}
	}
	return inserted, nil
}

func (s *SQLiteStore) InsertGrants(ctx context.Context, grants []model.Grant) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var total int64
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

		res, err := tx.ExecContext(ctx,
			`INSERT INTO grants (id, topic, description, link, agency, program, close_date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (link) DO NOTHING`,
			id, g.Topic, g.Description, g.Link, g.Agency, g.Program, g.CloseDate, createdAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert grant %s", g.Link)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return total, nil
}

func (s *SQLiteStore) GrantsMissingSummary(ctx context.Context) ([]model.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, description, link, agency, program, close_date, created_at
		 FROM grants WHERE summary IS NULL ORDER BY created_at LIMIT ?`,
		selectBatchLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: grants missing summary")
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		var g model.Grant
		var agency, program, closeDate sql.NullString
		if err := rows.Scan(&g.ID, &g.Topic, &g.Description, &g.Link, &agency, &program, &closeDate, &g.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan grant")
		}
		g.Agency = agency.String
		g.Program = program.String
		g.CloseDate = closeDate.String
		grants = append(grants, g)
	}
	return grants, eris.Wrap(rows.Err(), "sqlite: grants missing summary iterate")
}

func (s *SQLiteStore) SetGrantSummary(ctx context.Context, id string, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE grants SET summary = ? WHERE id = ?`,
		summary, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set grant summary %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("grant not found: %s", id)
	}
	return nil
}
