package query

import (
	"reflect"
	"testing"

	"github.com/starford/dagaz/internal/preset"
)

func TestProject_ColumnOrder(t *testing.T) {
	records := []preset.Record{
		{"fileName": "a.json", "type": "button", "controlTitle": "OK"},
		{"fileName": "b.json", "type": "label"},
	}

	rows := Project(records, []string{"controlTitle", "fileName"})
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if !reflect.DeepEqual(rows[0], []any{"OK", "a.json"}) {
		t.Errorf("rows[0] = %v", rows[0])
	}
	// Absent property projects as nil in its own column, never shifted.
	if !reflect.DeepEqual(rows[1], []any{nil, "b.json"}) {
		t.Errorf("rows[1] = %v", rows[1])
	}
}

func TestProject_Empty(t *testing.T) {
	rows := Project(nil, []string{"a"})
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want empty non-nil slice", rows)
	}
}

func TestPropertyNames_SortedUnion(t *testing.T) {
	records := []preset.Record{
		{"fileName": "a.json", "type": "button"},
		{"fileName": "b.json", "zIndex": float64(1), "alpha": 0.5},
	}
	got := PropertyNames(records)
	want := []string{"alpha", "fileName", "type", "zIndex"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PropertyNames = %v, want %v", got, want)
	}
}
