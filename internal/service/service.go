// Package service coordinates queries, exports, and sync passes over
// the record store.
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/metrics"
	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/store"
	"github.com/starford/dagaz/internal/syncer"
)

// DefaultPreviewLimit caps JSON query responses when the request does
// not name its own limit. Count always reports the unclipped total, and
// CSV export is never clipped.
const DefaultPreviewLimit = 100

// Status describes the store for clients.
type Status struct {
	Ready      bool      `json:"ready"`
	Files      int       `json:"files"`
	Records    int       `json:"records"`
	LastSync   time.Time `json:"last_sync"`
	Properties []string  `json:"properties"`
}

// Service answers queries against the record store and triggers sync
// passes through the coordinator.
type Service struct {
	store        store.RecordStore
	coord        *syncer.Coordinator
	previewLimit int
	metrics      *metrics.Metrics
}

// New creates a Service. A previewLimit of zero or less selects the
// default.
func New(st store.RecordStore, coord *syncer.Coordinator, previewLimit int, m *metrics.Metrics) *Service {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	return &Service{store: st, coord: coord, previewLimit: previewLimit, metrics: m}
}

// Query runs one conjunctive filter query and projects the matches onto
// the requested columns.
func (s *Service) Query(_ context.Context, req query.Request) (*query.Result, error) {
	start := time.Now()
	res, err := s.runQuery(req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordQuery(status, time.Since(start))
	return res, err
}

func (s *Service) runQuery(req query.Request) (*query.Result, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(req.Filters)
	if err != nil {
		return nil, err
	}
	columns, err := resolveColumns(req.Columns)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Find(filters)
	if err != nil {
		return nil, err
	}
	rows := query.Project(records, columns)
	count := len(rows)

	limit := req.Limit
	if limit <= 0 {
		limit = s.previewLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return &query.Result{Count: count, Columns: columns, Results: rows}, nil
}

// Export writes the full unclipped result set as CSV: a header row of
// column names, then one row per record with absent cells left empty.
// It returns the number of data rows written.
func (s *Service) Export(_ context.Context, w io.Writer, req query.Request) (int, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	filters, err := normalizeFilters(req.Filters)
	if err != nil {
		return 0, err
	}
	columns, err := resolveColumns(req.Columns)
	if err != nil {
		return 0, err
	}
	records, err := s.store.Find(filters)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("service: write csv header: %w", err)
	}
	row := make([]string, len(columns))
	for n, rec := range records {
		for i, col := range columns {
			row[i] = query.Text(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return n, fmt.Errorf("service: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(records), fmt.Errorf("service: flush csv: %w", err)
	}
	s.metrics.RecordExport()
	return len(records), nil
}

// Status reports store readiness, sizes, and the known property names.
func (s *Service) Status(_ context.Context) (*Status, error) {
	st, err := s.store.Status()
	if err != nil {
		return nil, err
	}
	props, err := s.store.PropertyNames()
	if err != nil {
		return nil, err
	}
	return &Status{
		Ready:      st.Ready,
		Files:      st.Files,
		Records:    st.Records,
		LastSync:   st.LastSync,
		Properties: nonNilSlice(props),
	}, nil
}

// Properties returns the sorted union of property names across all
// stored records. An unready store answers with an empty list.
func (s *Service) Properties(_ context.Context) ([]string, error) {
	props, err := s.store.PropertyNames()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(props), nil
}

// Sync runs one reconciliation pass.
func (s *Service) Sync(ctx context.Context, full bool) (syncer.Summary, error) {
	return s.coord.Sync(ctx, full)
}

// SyncRunning reports whether a pass is currently in flight.
func (s *Service) SyncRunning() bool { return s.coord.Running() }

// ensureReady rejects data operations until a first sync pass has
// completed. Readiness is checked before request validation so clients
// get the clearer signal.
func (s *Service) ensureReady() error {
	st, err := s.store.Status()
	if err != nil {
		return err
	}
	if !st.Ready {
		return apperr.ErrNotReady
	}
	return nil
}

// normalizeFilters canonicalizes operators and drops predicates the
// query engine treats as inert. An unknown operator rejects the whole
// request.
func normalizeFilters(filters []query.Filter) ([]query.Filter, error) {
	out := make([]query.Filter, 0, len(filters))
	for _, f := range filters {
		op, err := query.ParseOp(string(f.Op))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
		}
		f.Op = op
		if f.Ignored() {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// resolveColumns picks the projection: nothing requested means the
// default columns, requested columns are kept in order with blanks
// dropped, and an all-blank list is a client error.
func resolveColumns(cols []string) ([]string, error) {
	if len(cols) == 0 {
		return append([]string(nil), query.DefaultColumns...), nil
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable output columns", apperr.ErrInvalidRequest)
	}
	return out, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
