package artifact

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteIndex persists the index so artifact ages survive a restart.
type SQLiteIndex struct {
	db   *sql.DB
	lock sync.RWMutex
}

// NewSQLiteIndex opens (creating if necessary) the database at path. The returned function closes it.
func NewSQLiteIndex(path string) (*SQLiteIndex, func(), error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, func() {}, errors.Wrapf(err, "could not make directory at %s for sqlite db", dir)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "error opening sqlite DB from %s", path)
	}
	return &SQLiteIndex{db: db}, func() {
		if err := db.Close(); err != nil {
			log.Warnf("error closing database: %v", err)
		}
	}, nil
}

// Setup creates the table if it does not exist yet. Existing rows are kept.
func (s *SQLiteIndex) Setup(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return errors.WithStack(err)
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artifacts (
			RequestId TEXT,
			Kind TEXT,
			Path TEXT,
			Created INT,
			PRIMARY KEY(RequestId, Kind))`)
	return errors.WithStack(err)
}

func (s *SQLiteIndex) Add(ctx context.Context, artifact *Artifact) error {
	// SQLite only allows one write at a time. Therefore we must serialize
	// writes in order to avoid SQL_BUSY errors.
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO artifacts VALUES (?, ?, ?, ?)",
		artifact.RequestId, string(artifact.Kind), artifact.Path, artifact.Created.UnixNano())
	return errors.WithStack(err)
}

func (s *SQLiteIndex) Get(ctx context.Context, id string, kind Kind) (*Artifact, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var path string
	var created int64
	row := s.db.QueryRowContext(ctx, "SELECT Path, Created FROM artifacts WHERE RequestId = ? AND Kind = ?", id, string(kind))
	err := row.Scan(&path, &created)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.WithStack(err)
	}
	return &Artifact{RequestId: id, Kind: kind, Path: path, Created: time.Unix(0, created)}, true, nil
}

func (s *SQLiteIndex) Remove(ctx context.Context, id string, kind Kind) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE RequestId = ? AND Kind = ?", id, string(kind))
	return errors.WithStack(err)
}

func (s *SQLiteIndex) List(ctx context.Context) ([]*Artifact, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT RequestId, Kind, Path, Created FROM artifacts ORDER BY Created")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var result []*Artifact
	for rows.Next() {
		var id, kind, path string
		var created int64
		if err := rows.Scan(&id, &kind, &path, &created); err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, &Artifact{RequestId: id, Kind: Kind(kind), Path: path, Created: time.Unix(0, created)})
	}
	return result, errors.WithStack(rows.Err())
}

func (s *SQLiteIndex) HealthCheck(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, "SELECT 1")
	var col int
	if err := row.Scan(&col); err != nil {
		return errors.Wrap(err, "sqlite health check failed")
	}
	return nil
}
