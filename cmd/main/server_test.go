package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/viewkit/pkg/bootstrap"
	vconfig "github.com/CTAG07/viewkit/pkg/config"
	"github.com/CTAG07/viewkit/pkg/store"
)

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := initDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("initDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, setup := range []func() error{
		func() error { return setupAuthSchema(db) },
		func() error { return setupStatsSchema(db) },
		func() error { return store.SetupSchema(db) },
	} {
		if err = setup(); err != nil {
			t.Fatalf("schema setup error = %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.New(db, logger)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(st.Close)

	viewCfg := vconfig.DefaultConfig()
	viewCfg.Paths = vconfig.Paths{"/views"}
	viewCfg.Namespaces = map[string][]string{"admin": {"/admin"}}
	viewCfg.Shared = map[string]any{"site": "viewkit"}
	views, err := bootstrap.New(viewCfg, logger, bootstrap.WithStore(st))
	if err != nil {
		t.Fatalf("bootstrap.New() error = %v", err)
	}

	ctx := context.Background()
	seed := map[string]string{
		"/views/index.tmpl":     `<h1>{{.site}}</h1>`,
		"/views/blog/post.tmpl": `{{.title}}{{range .tag}}[{{.}}]{{end}}`,
		"/views/broken.tmpl":    `{{call .site}}`,
		"/admin/dashboard.tmpl": `admin:{{.user}}`,
	}
	for p, body := range seed {
		if err = st.Put(ctx, p, []byte(body)); err != nil {
			t.Fatalf("Put(%s) error = %v", p, err)
		}
	}

	cfg := DefaultConfig()
	return NewServer(cfg, logger, db, views, st, make(chan string, 1)), st
}

func doRequest(t *testing.T, h http.Handler, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleView(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBody string
	}{
		{name: "index", target: "/", wantCode: http.StatusOK, wantBody: "<h1>viewkit</h1>"},
		{name: "nested path with query data", target: "/blog/post?title=Hi&tag=a&tag=b", wantCode: http.StatusOK, wantBody: "Hi[a][b]"},
		{name: "namespace", target: "/dashboard?ns=admin&user=root", wantCode: http.StatusOK, wantBody: "admin:root"},
		{name: "missing view", target: "/nope", wantCode: http.StatusNotFound},
		{name: "unknown namespace", target: "/dashboard?ns=other", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, server.viewMux, http.MethodGet, tt.target, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantCode == http.StatusOK && rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHandleView_RecordsStats(t *testing.T) {
	server, _ := setupTestServer(t)

	doRequest(t, server.viewMux, http.MethodGet, "/", nil)
	doRequest(t, server.viewMux, http.MethodGet, "/", nil)
	if rec := doRequest(t, server.viewMux, http.MethodGet, "/broken", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("broken view status = %d", rec.Code)
	}

	rec := doRequest(t, server.apiMux, http.MethodGet, "/api/stats/summary", nil)
	var summary StatsSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	want := StatsSummary{TotalRenders: 3, TotalFailures: 1, UniqueViews: 2}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}

	rec = doRequest(t, server.apiMux, http.MethodGet, "/api/stats/top_views?limit=1", nil)
	var top []ViewStats
	if err := json.NewDecoder(rec.Body).Decode(&top); err != nil {
		t.Fatalf("decode top views: %v", err)
	}
	if len(top) != 1 || top[0].View != "index" || top[0].Renders != 2 {
		t.Errorf("top views = %+v", top)
	}
}

func TestViewAPI_FileLifecycle(t *testing.T) {
	server, _ := setupTestServer(t)
	api := server.apiMux

	// Prime the template cache so the update must invalidate it.
	if rec := doRequest(t, server.viewMux, http.MethodGet, "/", nil); rec.Body.String() != "<h1>viewkit</h1>" {
		t.Fatalf("initial render = %q", rec.Body.String())
	}

	rec := doRequest(t, api, http.MethodPut, "/api/views/files/views/index.tmpl", strings.NewReader(`<h2>{{.site}}</h2>`))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT status = %d (%s)", rec.Code, rec.Body.String())
	}
	if rec = doRequest(t, server.viewMux, http.MethodGet, "/", nil); rec.Body.String() != "<h2>viewkit</h2>" {
		t.Errorf("render after PUT = %q", rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/views/files/views/index.tmpl", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `<h2>{{.site}}</h2>` {
		t.Errorf("GET = %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/views", nil)
	var entries []store.Entry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("list returned %d entries, want 4", len(entries))
	}

	if rec = doRequest(t, api, http.MethodDelete, "/api/views/files/views/index.tmpl", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if rec = doRequest(t, api, http.MethodDelete, "/api/views/files/views/index.tmpl", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
	if rec = doRequest(t, server.viewMux, http.MethodGet, "/", nil); rec.Code != http.StatusNotFound {
		t.Errorf("render after DELETE status = %d, want 404", rec.Code)
	}
}

func TestViewAPI_ExistsRenderAndEngines(t *testing.T) {
	server, _ := setupTestServer(t)
	api := server.apiMux

	rec := doRequest(t, api, http.MethodGet, "/api/views/exists?name=blog/post", nil)
	var exists struct {
		Exists bool `json:"exists"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&exists)
	if !exists.Exists {
		t.Error("exists(blog/post) = false")
	}

	rec = doRequest(t, api, http.MethodPost, "/api/views/render?name=blog.post", bytes.NewBufferString(`{"title":"Preview","tag":["x"]}`))
	if rec.Code != http.StatusOK || rec.Body.String() != "Preview[x]" {
		t.Errorf("render = %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/views/render?name=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("render missing status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/views/engines", nil)
	if !strings.Contains(rec.Body.String(), `"engines":["go"]`) {
		t.Errorf("engines = %s", rec.Body.String())
	}

	if rec = doRequest(t, api, http.MethodGet, "/api/views/flush", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET flush status = %d, want 405", rec.Code)
	}
	if rec = doRequest(t, api, http.MethodPost, "/api/views/flush", nil); rec.Code != http.StatusNoContent {
		t.Errorf("POST flush status = %d", rec.Code)
	}
}

func TestAuth_ScopesAfterFirstKey(t *testing.T) {
	server, _ := setupTestServer(t)
	api := server.apiMux

	// With no keys the API is open; the first key becomes a master key.
	rec := doRequest(t, api, http.MethodPost, "/api/auth/keys", strings.NewReader(`{"description":"root","scopes":["views:read"]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create master key status = %d (%s)", rec.Code, rec.Body.String())
	}
	var master CreateKeyResponse
	_ = json.NewDecoder(rec.Body).Decode(&master)
	if len(master.Scopes) != 1 || master.Scopes[0] != "*" {
		t.Errorf("first key scopes = %v, want [*]", master.Scopes)
	}

	if rec = doRequest(t, api, http.MethodGet, "/api/views", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/auth/keys", strings.NewReader(`{"description":"reader","scopes":["views:read"]}`), authHeader, master.RawKey)
	var reader CreateKeyResponse
	_ = json.NewDecoder(rec.Body).Decode(&reader)

	if rec = doRequest(t, api, http.MethodGet, "/api/views", nil, authHeader, reader.RawKey); rec.Code != http.StatusOK {
		t.Errorf("reader list status = %d", rec.Code)
	}
	if rec = doRequest(t, api, http.MethodPost, "/api/views/flush", nil, authHeader, reader.RawKey); rec.Code != http.StatusForbidden {
		t.Errorf("reader flush status = %d, want 403", rec.Code)
	}
	if rec = doRequest(t, api, http.MethodDelete, "/api/auth/keys/1", nil, authHeader, master.RawKey); rec.Code != http.StatusBadRequest {
		t.Errorf("delete master key status = %d, want 400", rec.Code)
	}
	if rec = doRequest(t, api, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestAuth_ScopesForNewKey(t *testing.T) {
	server, _ := setupTestServer(t)
	auth := server.authAPI
	ctx := context.Background()

	scopes, err := auth.scopesForNewKey(ctx, []string{"views:read"})
	if err != nil || scopes != "*" {
		t.Errorf("first key scopes = %q, %v, want *", scopes, err)
	}

	if _, err = server.db.Exec(`INSERT INTO api_keys (key_hash, description, scopes) VALUES ('h', 'd', '*')`); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}
	scopes, err = auth.scopesForNewKey(ctx, []string{"views:read", "stats:read"})
	if err != nil || scopes != "views:read stats:read" {
		t.Errorf("second key scopes = %q, %v", scopes, err)
	}

	if _, err = server.db.Exec(`DROP TABLE api_keys`); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}
	if scopes, err = auth.scopesForNewKey(ctx, nil); err == nil {
		t.Errorf("scopesForNewKey() = %q with a failing count, want an error", scopes)
	}
}

func TestViewAPI_StoreDisabled(t *testing.T) {
	server, _ := setupTestServer(t)
	server.viewAPI.store = nil

	if rec := doRequest(t, server.apiMux, http.MethodGet, "/api/views", nil); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestQueryDataAndViewName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/a/b/?ns=x&k=v&m=1&m=2", nil)
	if got := viewNameFromRequest(req, "index"); got != "x::a/b" {
		t.Errorf("viewNameFromRequest() = %q", got)
	}
	data := queryData(req)
	if _, ok := data[nsParam]; ok {
		t.Error("queryData() should drop the namespace parameter")
	}
	if data["k"] != "v" {
		t.Errorf("data[k] = %v", data["k"])
	}
	if m, ok := data["m"].([]string); !ok || len(m) != 2 {
		t.Errorf("data[m] = %v", data["m"])
	}
}
