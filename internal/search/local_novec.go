//go:build !sqlite_vec || !cgo

package search

import (
	"context"
	"database/sql"
	"errors"
)

var errVecUnavailable = errors.New("sqlite-vec extension not compiled in")

func detectVecExtension(*sql.DB) bool { return false }

func (l *LocalIndex) vecAdd(context.Context, string, string, string, []float32) error {
	return errVecUnavailable
}

func (l *LocalIndex) vecQuery(context.Context, string, []float32, int) ([]Match, error) {
	return nil, errVecUnavailable
}
