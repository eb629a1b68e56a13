package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sprintboard/internal/dataset"
)

var ErrNoSnapshot = errors.New("no snapshot imported")

// Store keeps imported story snapshots in SQLite.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
            id TEXT PRIMARY KEY,
            source TEXT,
            loaded_at TIMESTAMP,
            imported_at TIMESTAMP,
            row_count INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS records (
            snapshot_id TEXT,
            row_idx INTEGER,
            project_name TEXT,
            sprint_name TEXT,
            sprint_id TEXT,
            story_key TEXT,
            story_type TEXT,
            story_status TEXT,
            parent_id TEXT,
            PRIMARY KEY (snapshot_id, row_idx)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_imported ON snapshots(imported_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotInfo describes an imported snapshot without its rows.
type SnapshotInfo struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	LoadedAt   time.Time `json:"loaded_at"`
	ImportedAt time.Time `json:"imported_at"`
	RowCount   int       `json:"row_count"`
}

// ImportSnapshot writes every record of snap in one transaction, keeping
// row order. Re-importing the same snapshot id replaces it.
func (s *Store) ImportSnapshot(ctx context.Context, snap *dataset.Snapshot, ts time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE snapshot_id=?`, snap.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(id, source, loaded_at, imported_at, row_count) VALUES(?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET source=excluded.source, loaded_at=excluded.loaded_at, imported_at=excluded.imported_at, row_count=excluded.row_count`,
		snap.ID, snap.Source, snap.LoadedAt, ts.UTC(), snap.Len()); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(snapshot_id, row_idx, project_name, sprint_name, sprint_id, story_key, story_type, story_status, parent_id)
        VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range snap.Records() {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, r.ProjectName, r.SprintName, r.SprintID, r.StoryKey, r.StoryType, r.Status, nullable(r.ParentID)); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LatestSnapshot loads the most recently imported snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*dataset.Snapshot, error) {
	infos, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNoSnapshot
	}
	return s.LoadSnapshot(ctx, infos[0].ID)
}

// LoadSnapshot rebuilds a snapshot by id.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (*dataset.Snapshot, error) {
	var info SnapshotInfo
	row := s.db.QueryRowContext(ctx, `SELECT id, source, loaded_at, imported_at, row_count FROM snapshots WHERE id=?`, id)
	switch err := row.Scan(&info.ID, &info.Source, &info.LoadedAt, &info.ImportedAt, &info.RowCount); err {
	case nil:
	case sql.ErrNoRows:
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNoSnapshot)
	default:
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT project_name, sprint_name, sprint_id, story_key, story_type, story_status, parent_id
        FROM records WHERE snapshot_id=? ORDER BY row_idx ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := make([]dataset.Record, 0, info.RowCount)
	for rows.Next() {
		var r dataset.Record
		var parent sql.NullString
		if err := rows.Scan(&r.ProjectName, &r.SprintName, &r.SprintID, &r.StoryKey, &r.StoryType, &r.Status, &parent); err != nil {
			return nil, err
		}
		if parent.Valid {
			r.ParentID = parent.String
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dataset.RestoreSnapshot(info.ID, info.Source, records, info.LoadedAt), nil
}

// ListSnapshots returns imported snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, loaded_at, imported_at, row_count FROM snapshots ORDER BY imported_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Source, &info.LoadedAt, &info.ImportedAt, &info.RowCount); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
