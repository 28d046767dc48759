// Package source abstracts where preset JSON files come from.
package source

import (
	"context"
	"strings"
)

// FileInfo identifies one preset file in a source listing. Marker is an
// opaque change token: two listings reporting the same marker for the
// same name are guaranteed to hold identical content.
type FileInfo struct {
	Name   string
	Marker string
}

// Source lists preset files and fetches their raw bytes. Names are
// slash-separated and relative to the source root; Fetch accepts names
// exactly as returned by List.
type Source interface {
	List(ctx context.Context) ([]FileInfo, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// ListFilter narrows a source listing by file name. Zero-value fields
// are inactive.
type ListFilter struct {
	Prefix  string // name must start with this
	Suffix  string // name must end with this, e.g. ".json"
	Exclude string // names containing this substring are skipped
}

// Match reports whether name passes the filter.
func (f ListFilter) Match(name string) bool {
	if f.Prefix != "" && !strings.HasPrefix(name, f.Prefix) {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(name, f.Suffix) {
		return false
	}
	if f.Exclude != "" && strings.Contains(name, f.Exclude) {
		return false
	}
	return true
}
