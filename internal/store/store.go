// Package store persists flattened preset records together with the
// per-file markers that drive incremental sync.
package store

import (
	"time"

	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/query"
)

// FileMeta tracks one synced source file. ChangeMarker is the opaque
// listing marker the file carried when its records were stored; a later
// listing with a different marker means the file must be re-synced.
type FileMeta struct {
	FileName     string
	ChangeMarker string
	RecordCount  int
	SyncedAt     time.Time
}

// SyncMeta summarizes the last completed sync. It is recomputed from
// scratch and overwritten whole at the end of every run.
type SyncMeta struct {
	FileCount   int
	RecordCount int
	SyncedAt    time.Time
}

// Status reports what the store currently serves. Ready flips to true
// once a first sync has completed and stays true from then on.
type Status struct {
	Ready    bool
	Files    int
	Records  int
	LastSync time.Time
}

// FileRecords pairs a file's metadata with its flattened records. It is
// the unit ReplaceAll swaps in.
type FileRecords struct {
	Meta    FileMeta
	Records []preset.Record
}

// RecordStore is the contract shared by the in-memory and SQLite-backed
// stores. Find applies predicates with the store's own presence mode
// and returns ErrNotReady until the first sync completes; the other
// read operations answer on an unready store too.
//
// Consumers should depend on this interface rather than a concrete
// store so either variant can back them.
type RecordStore interface {
	Find(filters []query.Filter) ([]preset.Record, error)
	PropertyNames() ([]string, error)
	Status() (Status, error)

	FileMetas() (map[string]FileMeta, error)
	ReplaceFile(meta FileMeta, records []preset.Record) error
	DeleteFile(fileName string) error
	ReplaceAll(files []FileRecords, syncedAt time.Time) error
	SetSyncMeta(meta SyncMeta) error

	Close() error
}
