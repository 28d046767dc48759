package store

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/query"
)

func testSQLite(t *testing.T, presence query.Presence, maxResults int) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := OpenSQLite(f.Name(), presence, maxResults)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// eachStore runs fn against both implementations so their query
// semantics stay in step.
func eachStore(t *testing.T, presence query.Presence, maxResults int, fn func(t *testing.T, s RecordStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(presence, maxResults))
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, testSQLite(t, presence, maxResults))
	})
}

func seedStore(t *testing.T, s RecordStore) {
	t.Helper()
	now := time.Now()

	buttons := []preset.Record{
		{"fileName": "buttons.json", "type": "button", "controlTitle": "Primary Button", "cornerRadius": float64(8), "enabled": true},
		{"fileName": "buttons.json", "type": "button", "controlTitle": "100% Width", "tint": nil},
	}
	labels := []preset.Record{
		{"fileName": "labels.json", "type": "label", "controlTitle": "Caption"},
	}

	if err := s.ReplaceFile(FileMeta{FileName: "labels.json", ChangeMarker: "m1", RecordCount: 1, SyncedAt: now}, labels); err != nil {
		t.Fatalf("ReplaceFile labels: %v", err)
	}
	if err := s.ReplaceFile(FileMeta{FileName: "buttons.json", ChangeMarker: "m2", RecordCount: 2, SyncedAt: now}, buttons); err != nil {
		t.Fatalf("ReplaceFile buttons: %v", err)
	}
	if err := s.SetSyncMeta(SyncMeta{FileCount: 2, RecordCount: 3, SyncedAt: now}); err != nil {
		t.Fatalf("SetSyncMeta: %v", err)
	}
}

func titles(records []preset.Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, query.Text(r["controlTitle"]))
	}
	return out
}

func TestFind_NotReady(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		_, err := s.Find(nil)
		if !errors.Is(err, apperr.ErrNotReady) {
			t.Fatalf("Find on empty store: err = %v, want ErrNotReady", err)
		}

		// Readiness comes from a completed sync, not from data volume: an
		// empty but synced store answers with zero records.
		if err := s.SetSyncMeta(SyncMeta{SyncedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
		recs, err := s.Find(nil)
		if err != nil {
			t.Fatalf("Find after sync meta: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("len(recs) = %d, want 0", len(recs))
		}
	})
}

func TestFind_NoFiltersReturnsAllInOrder(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		recs, err := s.Find(nil)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		want := []string{"Primary Button", "100% Width", "Caption"}
		if got := titles(recs); !reflect.DeepEqual(got, want) {
			t.Errorf("order = %v, want %v", got, want)
		}
	})
}

func TestFind_TextOperators(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)

		recs, err := s.Find([]query.Filter{{Property: "controlTitle", Op: query.OpIncludes, Value: "PRIMARY"}})
		if err != nil {
			t.Fatalf("Find includes: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("includes PRIMARY = %v", got)
		}

		recs, err = s.Find([]query.Filter{{Property: "type", Op: query.OpEquals, Value: "Label"}})
		if err != nil {
			t.Fatalf("Find equals: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Caption"}) {
			t.Errorf("equals Label = %v", got)
		}

		// Absent property satisfies the negated operator on every record
		// that lacks it.
		recs, err = s.Find([]query.Filter{{Property: "cornerRadius", Op: query.OpNotEquals, Value: "9"}})
		if err != nil {
			t.Fatalf("Find not_equals: %v", err)
		}
		if len(recs) != 3 {
			t.Errorf("not_equals on mostly-absent property: %d records, want 3", len(recs))
		}

		recs, err = s.Find([]query.Filter{
			{Property: "type", Op: query.OpEquals, Value: "button"},
			{Property: "controlTitle", Op: query.OpNotIncludes, Value: "width"},
		})
		if err != nil {
			t.Fatalf("Find conjunction: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("conjunction = %v", got)
		}
	})
}

func TestFind_TypedValues(t *testing.T) {
	// Number and boolean properties answer both equals and includes. The
	// in-memory engine compares rendered text and SQLite matches the
	// typed value, so on whole-value filters the two stores agree.
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)

		recs, err := s.Find([]query.Filter{{Property: "cornerRadius", Op: query.OpEquals, Value: "8"}})
		if err != nil {
			t.Fatalf("Find numeric: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("cornerRadius equals 8 = %v", got)
		}

		recs, err = s.Find([]query.Filter{{Property: "enabled", Op: query.OpEquals, Value: "true"}})
		if err != nil {
			t.Fatalf("Find bool: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("enabled equals true = %v", got)
		}

		recs, err = s.Find([]query.Filter{{Property: "enabled", Op: query.OpIncludes, Value: "ru"}})
		if err != nil {
			t.Fatalf("Find bool substring: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("enabled includes ru = %v", got)
		}

		recs, err = s.Find([]query.Filter{{Property: "cornerRadius", Op: query.OpIncludes, Value: "8"}})
		if err != nil {
			t.Fatalf("Find numeric substring: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("cornerRadius includes 8 = %v", got)
		}
	})
}

// A filter value that parses as a number or boolean takes the typed
// path in SQLite and never the text path, so string-encoded lookalikes
// like "8" or "true" stop matching there. The in-memory engine keeps
// its text coercion and still matches them.
func TestFind_TypedStringLookalikes(t *testing.T) {
	seedLookalikes := func(t *testing.T, s RecordStore) {
		t.Helper()
		seedStore(t, s)
		badges := []preset.Record{
			{"fileName": "badges.json", "type": "badge", "controlTitle": "Stringly Badge", "cornerRadius": "8", "enabled": "true"},
		}
		if err := s.ReplaceFile(FileMeta{FileName: "badges.json", ChangeMarker: "m3", RecordCount: 1, SyncedAt: time.Now()}, badges); err != nil {
			t.Fatalf("ReplaceFile badges: %v", err)
		}
	}

	radius := []query.Filter{{Property: "cornerRadius", Op: query.OpEquals, Value: "8"}}
	enabled := []query.Filter{{Property: "enabled", Op: query.OpEquals, Value: "TRUE"}}

	t.Run("memory", func(t *testing.T) {
		s := NewMemory(query.PresenceByKey, 0)
		seedLookalikes(t, s)

		recs, err := s.Find(radius)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Stringly Badge", "Primary Button"}) {
			t.Errorf("text equals 8 = %v", got)
		}

		recs, err = s.Find(enabled)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Stringly Badge", "Primary Button"}) {
			t.Errorf("text equals TRUE = %v", got)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		s := testSQLite(t, query.PresenceByKey, 0)
		seedLookalikes(t, s)

		recs, err := s.Find(radius)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("typed equals 8 = %v", got)
		}

		recs, err = s.Find(enabled)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Primary Button"}) {
			t.Errorf("typed equals TRUE = %v", got)
		}

		// The negated form flips with it: the string "true" is not the
		// JSON boolean, so its record now satisfies not_equals.
		recs, err = s.Find([]query.Filter{
			{Property: "enabled", Op: query.OpNotEquals, Value: "true"},
			{Property: "enabled", Op: query.OpExists},
		})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Stringly Badge"}) {
			t.Errorf("typed not_equals true = %v", got)
		}
	})
}

func TestFind_LikeMetacharactersLiteral(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)

		// "100%" must match the literal percent sign, not act as a
		// wildcard over "Primary Button" too.
		recs, err := s.Find([]query.Filter{{Property: "controlTitle", Op: query.OpIncludes, Value: "100%"}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"100% Width"}) {
			t.Errorf("includes 100%% = %v", got)
		}
	})
}

func TestFind_PresenceModes(t *testing.T) {
	// buttons.json's second record carries tint: null.
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		recs, err := s.Find([]query.Filter{{Property: "tint", Op: query.OpExists}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"100% Width"}) {
			t.Errorf("key presence: exists tint = %v", got)
		}
	})

	eachStore(t, query.PresenceByValue, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		recs, err := s.Find([]query.Filter{{Property: "tint", Op: query.OpExists}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("value presence: exists tint = %v, want none", titles(recs))
		}

		recs, err = s.Find([]query.Filter{{Property: "tint", Op: query.OpNotExists}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(recs) != 3 {
			t.Errorf("value presence: not_exists tint matched %d, want 3", len(recs))
		}
	})
}

func TestFind_MaxResultsCap(t *testing.T) {
	eachStore(t, query.PresenceByKey, 2, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		recs, err := s.Find(nil)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(recs) != 2 {
			t.Errorf("len(recs) = %d, want cap of 2", len(recs))
		}
	})
}

func TestPropertyNames_Union(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		names, err := s.PropertyNames()
		if err != nil {
			t.Fatalf("PropertyNames: %v", err)
		}
		want := []string{"controlTitle", "cornerRadius", "enabled", "fileName", "tint", "type"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("names = %v, want %v", names, want)
		}
	})
}

func TestStatusAndFileMetas(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		st, err := s.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Ready {
			t.Error("fresh store reports ready")
		}

		seedStore(t, s)

		st, err = s.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !st.Ready || st.Files != 2 || st.Records != 3 {
			t.Errorf("status = %+v, want ready with 2 files / 3 records", st)
		}
		if st.LastSync.IsZero() {
			t.Error("LastSync is zero after sync")
		}

		metas, err := s.FileMetas()
		if err != nil {
			t.Fatalf("FileMetas: %v", err)
		}
		if len(metas) != 2 || metas["buttons.json"].ChangeMarker != "m2" {
			t.Errorf("metas = %+v", metas)
		}
	})
}

func TestDeleteFile(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)
		if err := s.DeleteFile("buttons.json"); err != nil {
			t.Fatalf("DeleteFile: %v", err)
		}

		recs, err := s.Find(nil)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := titles(recs); !reflect.DeepEqual(got, []string{"Caption"}) {
			t.Errorf("records after delete = %v", got)
		}

		metas, _ := s.FileMetas()
		if _, ok := metas["buttons.json"]; ok {
			t.Error("file meta survived delete")
		}
	})
}

func TestReplaceAll_Swap(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		seedStore(t, s)

		next := []FileRecords{
			{
				Meta:    FileMeta{FileName: "cards.json", ChangeMarker: "c1", RecordCount: 1, SyncedAt: time.Now()},
				Records: []preset.Record{{"fileName": "cards.json", "type": "card"}},
			},
		}
		if err := s.ReplaceAll(next, time.Now()); err != nil {
			t.Fatalf("ReplaceAll: %v", err)
		}

		recs, err := s.Find(nil)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(recs) != 1 || recs[0]["type"] != "card" {
			t.Errorf("records after swap = %v", recs)
		}

		st, _ := s.Status()
		if st.Files != 1 || st.Records != 1 {
			t.Errorf("status after swap = %+v", st)
		}

		// The old files' property names must not linger.
		names, _ := s.PropertyNames()
		want := []string{"fileName", "type"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("names after swap = %v, want %v", names, want)
		}
	})
}

func TestReplaceAll_MarksReady(t *testing.T) {
	eachStore(t, query.PresenceByKey, 0, func(t *testing.T, s RecordStore) {
		if err := s.ReplaceAll(nil, time.Now()); err != nil {
			t.Fatalf("ReplaceAll: %v", err)
		}
		if _, err := s.Find(nil); err != nil {
			t.Fatalf("Find after empty ReplaceAll: %v", err)
		}
	})
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	f, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())

	s, err := OpenSQLite(f.Name(), query.PresenceByKey, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	seedStore(t, s)
	s.Close()

	s, err = OpenSQLite(f.Name(), query.PresenceByKey, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	st, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Ready || st.Records != 3 {
		t.Errorf("status after reopen = %+v, want ready with 3 records", st)
	}

	recs, err := s.Find([]query.Filter{{Property: "type", Op: query.OpEquals, Value: "label"}})
	if err != nil {
		t.Fatalf("Find after reopen: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("len(recs) = %d, want 1", len(recs))
	}
}
