//go:build sqlite_vec && cgo

package search

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"soccode/internal/logging"
)

func init() {
	// vec.Auto() registers sqlite-vec as an auto-loadable extension for
	// every connection mattn/go-sqlite3 opens after this point.
	vec.Auto()
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available on this connection.
func detectVecExtension(db *sql.DB) bool {
	if _, err := db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err != nil {
		logging.SearchDebug("sqlite-vec not available: %v", err)
		return false
	}
	_, _ = db.Exec("DROP TABLE IF EXISTS vec_probe")
	return true
}

// ensureVecTable creates the vector table on first insert, sized to the
// first vector seen. Later vectors must match that dimension.
func (l *LocalIndex) ensureVecTable(ctx context.Context, dims int) error {
	l.vecMu.Lock()
	defer l.vecMu.Unlock()

	if l.vecDims != 0 {
		if dims != l.vecDims {
			return fmt.Errorf("vector has %d dimensions, index expects %d", dims, l.vecDims)
		}
		return nil
	}

	query := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS vec_candidates USING vec0(
		embedding   float[%d],
		index_name  TEXT,
		cand_id     TEXT,
		description TEXT
	)`, dims)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vec_candidates: %w", err)
	}

	l.vecDims = dims
	logging.Search("Vector table initialized (%d dimensions)", dims)
	return nil
}

// vecAdd mirrors a candidate into the vec0 table for ANN queries.
func (l *LocalIndex) vecAdd(ctx context.Context, index, id, description string, vector []float32) error {
	if err := l.ensureVecTable(ctx, len(vector)); err != nil {
		return err
	}

	if _, err := l.db.ExecContext(ctx,
		"DELETE FROM vec_candidates WHERE index_name = ? AND cand_id = ?", index, id); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO vec_candidates (embedding, index_name, cand_id, description) VALUES (?, ?, ?, ?)",
		float32SliceToBytes(vector), index, id, description)
	return err
}

// vecQuery ranks candidates with sqlite-vec's cosine distance. The caller
// falls back to the in-process scan when this errors or finds nothing.
func (l *LocalIndex) vecQuery(ctx context.Context, index string, vector []float32, k int) ([]Match, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT cand_id, description, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_candidates
		WHERE index_name = ?
		ORDER BY distance
		LIMIT ?
	`, float32SliceToBytes(vector), index, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, description string
		var distance float64
		if err := rows.Scan(&id, &description, &distance); err != nil {
			continue
		}
		score := 1.0 - distance
		if score < 0 {
			score = 0
		}
		match := Match{ID: id, Score: score}
		if description != "" {
			match.Metadata = map[string]string{"description": description}
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func float32SliceToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}
