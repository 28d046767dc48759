package store

import (
	"sort"
	"sync"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/query"
)

// Memory serves records straight from process memory. ReplaceAll builds
// the complete replacement state before taking the write lock, so a
// reader sees either the old record set or the new one, never a mix.
type Memory struct {
	presence   query.Presence
	maxResults int

	mu    sync.RWMutex
	files map[string][]preset.Record
	metas map[string]FileMeta
	props []string
	meta  SyncMeta
	ready bool
}

var _ RecordStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store. maxResults caps Find;
// zero means no cap.
func NewMemory(presence query.Presence, maxResults int) *Memory {
	return &Memory{
		presence:   presence,
		maxResults: maxResults,
		files:      make(map[string][]preset.Record),
		metas:      make(map[string]FileMeta),
	}
}

// Find returns every record matching the filters, in file-name order
// and document order within a file.
func (m *Memory) Find(filters []query.Filter) ([]preset.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return nil, apperr.ErrNotReady
	}

	out := []preset.Record{}
	for _, name := range m.fileNamesLocked() {
		for _, rec := range m.files[name] {
			if !query.Matches(rec, filters, m.presence) {
				continue
			}
			out = append(out, rec)
			if m.maxResults > 0 && len(out) >= m.maxResults {
				return out, nil
			}
		}
	}
	return out, nil
}

// PropertyNames returns the sorted union of property keys across all
// stored records. It answers on an unready store with an empty list.
func (m *Memory) PropertyNames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.props...), nil
}

func (m *Memory) Status() (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{Ready: m.ready, Files: len(m.files), LastSync: m.meta.SyncedAt}
	for _, recs := range m.files {
		st.Records += len(recs)
	}
	return st, nil
}

func (m *Memory) FileMetas() (map[string]FileMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]FileMeta, len(m.metas))
	for k, v := range m.metas {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ReplaceFile(meta FileMeta, records []preset.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[meta.FileName] = records
	m.metas[meta.FileName] = meta
	m.recomputePropsLocked()
	return nil
}

func (m *Memory) DeleteFile(fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, fileName)
	delete(m.metas, fileName)
	m.recomputePropsLocked()
	return nil
}

// ReplaceAll swaps the whole record set in one step.
func (m *Memory) ReplaceAll(files []FileRecords, syncedAt time.Time) error {
	newFiles := make(map[string][]preset.Record, len(files))
	newMetas := make(map[string]FileMeta, len(files))
	meta := SyncMeta{FileCount: len(files), SyncedAt: syncedAt}
	for _, f := range files {
		newFiles[f.Meta.FileName] = f.Records
		newMetas[f.Meta.FileName] = f.Meta
		meta.RecordCount += len(f.Records)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = newFiles
	m.metas = newMetas
	m.meta = meta
	m.ready = true
	m.recomputePropsLocked()
	return nil
}

// SetSyncMeta records a completed sync and marks the store ready.
func (m *Memory) SetSyncMeta(meta SyncMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.meta = meta
	m.ready = true
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) fileNamesLocked() []string {
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) recomputePropsLocked() {
	var all []preset.Record
	for _, recs := range m.files {
		all = append(all, recs...)
	}
	m.props = query.PropertyNames(all)
}
