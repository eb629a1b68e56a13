package app

import (
	"context"

	"sprintboard/internal/dataset"
	"sprintboard/internal/store"
)

// Source produces a fresh snapshot on every Load.
type Source interface {
	Load(ctx context.Context) (*dataset.Snapshot, error)
	Describe() string
}

// CSVSource reads the dashboard export from disk.
type CSVSource struct {
	Path    string
	Columns dataset.Columns
}

func (s CSVSource) Load(ctx context.Context) (*dataset.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dataset.LoadFile(s.Path, s.Columns)
}

func (s CSVSource) Describe() string { return "csv:" + s.Path }

// StoreSource serves the latest snapshot imported into SQLite.
type StoreSource struct {
	Store *store.Store
}

func (s StoreSource) Load(ctx context.Context) (*dataset.Snapshot, error) {
	return s.Store.LatestSnapshot(ctx)
}

func (s StoreSource) Describe() string { return "sqlite" }
