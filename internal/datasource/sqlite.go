package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/knowledge-engine/movierec/internal/search"
)

const moviesSchema = `
CREATE TABLE IF NOT EXISTS movies (
	movie_id     INTEGER PRIMARY KEY,
	title        TEXT    NOT NULL,
	industry     TEXT    NOT NULL DEFAULT '',
	genre        TEXT    NOT NULL DEFAULT '',
	language     TEXT    NOT NULL DEFAULT '',
	release_year INTEGER NOT NULL DEFAULT 0,
	overview     TEXT    NOT NULL DEFAULT '',
	poster_url   TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_movies_title ON movies(title);
`

// SQLiteSource reads the corpus from the movies table of a SQLite database
type SQLiteSource struct {
	db     *sql.DB
	path   string
	logger *logrus.Entry
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema exists
func OpenSQLite(path string, logger *logrus.Entry) (*SQLiteSource, error) {
	if logger == nil {
		logger = logrus.WithField("component", "sqlite_source")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(moviesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSource{db: db, path: path, logger: logger}, nil
}

func (s *SQLiteSource) LoadCorpus(ctx context.Context) ([]search.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT movie_id, title, industry, genre, language, release_year, overview, poster_url
		FROM movies
		ORDER BY movie_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer rows.Close()

	items := make([]search.Item, 0)
	for rows.Next() {
		var item search.Item
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Category, &item.Tags,
			&item.Locale, &item.Year, &item.Summary, &item.PosterURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movies: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"path": s.path, "items": len(items)}).Debug("Movies loaded")
	return items, nil
}

// Import writes items in one transaction. Rows with a positive ID replace the
// row with that ID; other rows get a new ID.
func (s *SQLiteSource) Import(ctx context.Context, items []search.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO movies
			(movie_id, title, industry, genre, language, release_year, overview, poster_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		var id any
		if item.ID > 0 {
			id = item.ID
		}
		if _, err := stmt.ExecContext(ctx,
			id, item.Title, item.Category, item.Tags,
			item.Locale, item.Year, item.Summary, item.PosterURL,
		); err != nil {
			return 0, fmt.Errorf("failed to insert %q: %w", item.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	s.logger.WithField("items", len(items)).Info("Movies imported")
	return len(items), nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
