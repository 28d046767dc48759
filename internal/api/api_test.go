package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/service"
	"github.com/starford/dagaz/internal/source"
	"github.com/starford/dagaz/internal/store"
	"github.com/starford/dagaz/internal/syncer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubSource serves fixed file contents. When blockCh is set, Fetch stalls
// until the channel closes, which keeps a sync pass visibly running.
type stubSource struct {
	files   map[string]string
	blockCh chan struct{}
}

func (s stubSource) List(_ context.Context) ([]source.FileInfo, error) {
	out := make([]source.FileInfo, 0, len(s.files))
	for name := range s.files {
		out = append(out, source.FileInfo{Name: name, Marker: "m1"})
	}
	return out, nil
}

func (s stubSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if s.blockCh != nil {
		select {
		case <-s.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", name)
	}
	return []byte(data), nil
}

// testEnv sets up a seeded in-memory store, service, and router.
// authToken="" means disabled mode; a non-empty token enables token mode.
func testEnv(t *testing.T, authToken string) (*service.Service, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, stubSource{}, true)
}

func testEnvFull(t *testing.T, authEnabled bool, token string, src source.Source, seed bool) (*service.Service, http.Handler) {
	t.Helper()

	st := store.NewMemory(query.PresenceByKey, 0)
	if seed {
		files := []store.FileRecords{
			{
				Meta: store.FileMeta{FileName: "a.json", ChangeMarker: "m1", RecordCount: 2, SyncedAt: time.Now()},
				Records: []preset.Record{
					{"fileName": "a.json", "type": "button", "controlTitle": "OK", "className": "PrimaryButton"},
					{"fileName": "a.json", "type": "label", "controlTitle": "Hint"},
				},
			},
			{
				Meta: store.FileMeta{FileName: "b.json", ChangeMarker: "m1", RecordCount: 1, SyncedAt: time.Now()},
				Records: []preset.Record{
					{"fileName": "b.json", "type": "button", "controlTitle": `Save, then "verify"`, "zIndex": float64(3)},
				},
			},
		}
		if err := st.ReplaceAll(files, time.Now()); err != nil {
			t.Fatalf("ReplaceAll: %v", err)
		}
	}

	coord := syncer.New(src, st, testLogger())
	svc := service.New(st, coord, 0, nil)
	router := NewRouter(svc, authEnabled, token, nil)
	return svc, router
}

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatal(msg)
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueryDefaults(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/query", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", w.Code, w.Body.String())
	}
	var res QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Count != 3 {
		t.Errorf("count = %d, want 3", res.Count)
	}
	if len(res.Columns) != 4 || res.Columns[0] != "fileName" {
		t.Errorf("columns = %v, want default projection", res.Columns)
	}
	if len(res.Results) != 3 {
		t.Errorf("len(results) = %d, want 3", len(res.Results))
	}
}

func TestQueryFiltered(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/query", map[string]any{
		"filters": []map[string]string{{"property": "type", "value": "button"}},
		"columns": []string{"controlTitle"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", w.Code, w.Body.String())
	}
	var res QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Count != 2 {
		t.Errorf("count = %d, want 2", res.Count)
	}
	if len(res.Columns) != 1 || res.Columns[0] != "controlTitle" {
		t.Errorf("columns = %v", res.Columns)
	}
}

func TestQueryLimitOverride(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/query", map[string]any{"limit": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d", w.Code)
	}
	var res QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Count != 3 || len(res.Results) != 1 {
		t.Errorf("count/results = %d/%d, want 3/1", res.Count, len(res.Results))
	}
}

func TestQueryInvalidOperator(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/query", map[string]any{
		"filters": []map[string]string{{"property": "type", "operator": "between", "value": "a"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid operator = %d, want 400", w.Code)
	}
}

func TestQueryNotReady(t *testing.T) {
	_, router := testEnvFull(t, false, "", stubSource{}, false)

	w := postJSON(t, router, "/query", map[string]any{})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("query before sync = %d, want 503", w.Code)
	}
}

func TestQueryEmptyBody(t *testing.T) {
	_, router := testEnv(t, "")

	// No body at all falls back to the default query.
	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body = %d, body = %s", w.Code, w.Body.String())
	}
	var res QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Count != 3 {
		t.Errorf("count = %d, want 3", res.Count)
	}
}

func TestQueryMalformedJSON(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"filters":`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON = %d, want 400", w.Code)
	}
}

func TestExportCSV(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/query/export", map[string]any{
		"columns": []string{"fileName", "controlTitle"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "presets.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "fileName" || rows[0][1] != "controlTitle" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[3][1] != `Save, then "verify"` {
		t.Errorf("quoted cell survived as %q", rows[3][1])
	}
}

func TestExportNotReady(t *testing.T) {
	_, router := testEnvFull(t, false, "", stubSource{}, false)

	w := postJSON(t, router, "/query/export", map[string]any{})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("export before sync = %d, want 503", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("error Content-Type = %q, want application/json", ct)
	}
}

func TestStatusSeeded(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Ready || st.Files != 2 || st.Records != 3 {
		t.Errorf("status = %+v, want ready with 2 files / 3 records", st)
	}
}

func TestStatusBeforeFirstSync(t *testing.T) {
	_, router := testEnvFull(t, false, "", stubSource{}, false)

	// Status never requires readiness; it reports it.
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Ready {
		t.Error("ready = true before any sync")
	}
}

func TestPropertiesEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/properties", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("properties = %d", w.Code)
	}
	var resp PropertiesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	want := []string{"className", "controlTitle", "fileName", "type", "zIndex"}
	if len(resp.Properties) != len(want) {
		t.Fatalf("properties = %v, want %v", resp.Properties, want)
	}
	for i, p := range want {
		if resp.Properties[i] != p {
			t.Errorf("properties[%d] = %q, want %q", i, resp.Properties[i], p)
		}
	}
}

func TestSyncAccepted(t *testing.T) {
	src := stubSource{files: map[string]string{
		"a.json": `{"body":{"objects":[{"type":"button","controlTitle":"OK"}]}}`,
	}}
	svc, router := testEnvFull(t, false, "", src, false)

	w := postJSON(t, router, "/sync", map[string]any{})
	if w.Code != http.StatusAccepted {
		t.Fatalf("sync = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SyncAcceptedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Started {
		t.Error("started = false")
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		st, err := svc.Status(context.Background())
		return err == nil && st.Ready && st.Files == 1
	}, "background sync never loaded the store")
}

func TestSyncConflict(t *testing.T) {
	blockCh := make(chan struct{})
	src := stubSource{
		files:   map[string]string{"a.json": `{"body":{"objects":[{"type":"button"}]}}`},
		blockCh: blockCh,
	}
	svc, router := testEnvFull(t, false, "", src, false)

	w := postJSON(t, router, "/sync", map[string]any{})
	if w.Code != http.StatusAccepted {
		t.Fatalf("first sync = %d, body = %s", w.Code, w.Body.String())
	}
	eventually(t, 5*time.Second, time.Millisecond, svc.SyncRunning, "first sync never started")

	w = postJSON(t, router, "/sync", map[string]any{})
	if w.Code != http.StatusConflict {
		t.Errorf("second sync = %d, want 409", w.Code)
	}

	close(blockCh)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return !svc.SyncRunning()
	}, "first sync never finished")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// Disabled mode → should not 401. SSE handler will write 200 and block,
	// so we cancel the context after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()

	st := store.NewMemory(query.PresenceByKey, 0)
	coord := syncer.New(stubSource{}, st, testLogger())
	svc := service.New(st, coord, 0, nil)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svc, authEnabled, token, sseHandler)
}
