package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"soccode/internal/logging"
)

// LocalIndex is a SQLite-backed vector index for offline operation. When the
// sqlite-vec extension is compiled in (build with -tags sqlite_vec), queries
// run through a vec0 table; otherwise vectors are stored as JSON and ranked
// by cosine similarity in process. The JSON store is always maintained so a
// database built with the extension stays usable without it.
type LocalIndex struct {
	db        *sql.DB
	vectorExt bool

	vecMu   sync.Mutex
	vecDims int
}

// OpenLocalIndex opens (creating if needed) the local index database.
func OpenLocalIndex(path string) (*LocalIndex, error) {
	if path == "" {
		path = "data/soccode.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local index: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS candidates (
		index_name  TEXT NOT NULL,
		id          TEXT NOT NULL,
		description TEXT,
		embedding   TEXT NOT NULL,
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (index_name, id)
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_index ON candidates(index_name);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	l := &LocalIndex{db: db, vectorExt: detectVecExtension(db)}
	logging.Search("Local index opened: %s (sqlite-vec: %v)", path, l.vectorExt)
	return l, nil
}

// Add inserts or replaces a candidate vector in the named index.
func (l *LocalIndex) Add(ctx context.Context, index, id, description string, vector []float32) error {
	embJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO candidates (index_name, id, description, embedding) VALUES (?, ?, ?, ?)",
		index, id, description, string(embJSON),
	)
	if err != nil {
		return err
	}

	if l.vectorExt {
		if err := l.vecAdd(ctx, index, id, description, vector); err != nil {
			logging.Get(logging.CategorySearch).Warn("vec insert failed for %s/%s: %v", index, id, err)
		}
	}
	return nil
}

// Query returns the top k candidates in the named index ranked by cosine
// similarity, through the vec0 table when the extension is loaded and an
// in-process scan otherwise. Fails with a retrieval provider error when the
// index holds no rows.
func (l *LocalIndex) Query(ctx context.Context, index string, vector []float32, k int) ([]Match, error) {
	timer := logging.StartTimer(logging.CategorySearch, "LocalIndex.Query")
	defer timer.Stop()

	if l.vectorExt {
		matches, err := l.vecQuery(ctx, index, vector, k)
		if err == nil && len(matches) > 0 {
			return matches, nil
		}
		if err != nil {
			logging.SearchDebug("vec query failed, falling back to scan: %v", err)
		}
	}

	rows, err := l.db.QueryContext(ctx,
		"SELECT id, description, embedding FROM candidates WHERE index_name = ?", index)
	if err != nil {
		return nil, retrievalError("query", err)
	}
	defer rows.Close()

	var matches []Match
	skipped := 0

	for rows.Next() {
		var id, description, embJSON string
		if err := rows.Scan(&id, &description, &embJSON); err != nil {
			skipped++
			continue
		}

		var candidate []float32
		if err := json.Unmarshal([]byte(embJSON), &candidate); err != nil {
			skipped++
			continue
		}

		similarity, err := CosineSimilarity(vector, candidate)
		if err != nil {
			skipped++
			continue
		}

		match := Match{ID: id, Score: similarity}
		if description != "" {
			match.Metadata = map[string]string{"description": description}
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, retrievalError("query", err)
	}
	if skipped > 0 {
		logging.Get(logging.CategorySearch).Warn("LocalIndex.Query: skipped %d unreadable rows", skipped)
	}

	if len(matches) == 0 {
		return nil, retrievalError("query", fmt.Errorf("unrecognized or empty index %q", index))
	}

	return topK(matches, k), nil
}

// Count returns the number of candidates stored in the named index.
func (l *LocalIndex) Count(ctx context.Context, index string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM candidates WHERE index_name = ?", index).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (l *LocalIndex) Close() error {
	start := time.Now()
	err := l.db.Close()
	logging.SearchDebug("Local index closed in %v", time.Since(start))
	return err
}

var _ Searcher = (*LocalIndex)(nil)
