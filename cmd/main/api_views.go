package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/viewkit/pkg/bootstrap"
	"github.com/CTAG07/viewkit/pkg/store"
	"github.com/CTAG07/viewkit/pkg/view"
)

// maxViewBody caps uploaded view bodies and preview data.
const maxViewBody = 4 << 20

// ViewAPI manages the view factory and, when enabled, the SQLite view store.
type ViewAPI struct {
	views  *bootstrap.Factory
	store  *store.Store
	logger *slog.Logger
}

// NewViewAPI creates a new instance of the ViewAPI. st may be nil when
// views are served from disk.
func NewViewAPI(views *bootstrap.Factory, st *store.Store, logger *slog.Logger) *ViewAPI {
	return &ViewAPI{views: views, store: st, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/views endpoints.
func (a *ViewAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/views", a.handleList)
	mux.HandleFunc("/api/views/files/", a.handleFile)
	mux.HandleFunc("/api/views/flush", a.handleFlush)
	mux.HandleFunc("/api/views/exists", a.handleExists)
	mux.HandleFunc("/api/views/render", a.handleRender)
	mux.HandleFunc("/api/views/import", a.handleImport)
	mux.HandleFunc("/api/views/export", a.handleExport)
	mux.HandleFunc("/api/views/engines", a.handleEngines)
}

func (a *ViewAPI) requireStore(w http.ResponseWriter) bool {
	if a.store == nil {
		respondWithError(w, http.StatusConflict, "View store is disabled; set use_store in config.json")
		return false
	}
	return true
}

// handleList lists the views held in the store.
func (a *ViewAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeViewsRead) || !a.requireStore(w) {
		return
	}
	entries, err := a.store.List(r.Context())
	if err != nil {
		a.logger.Error("Failed to list views", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list views: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// handleFile reads, writes or deletes one stored view body.
func (a *ViewAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	p := strings.TrimPrefix(r.URL.Path, "/api/views/files/")
	if p == "" || strings.Contains(p, "..") {
		respondWithError(w, http.StatusBadRequest, "Invalid view path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeViewsRead) {
			return
		}
		body, err := a.store.Get(r.Context(), p)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "View not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to read view", "path", p, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to read view")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(body)

	case http.MethodPut:
		if !requireScope(w, r, scopeViewsWrite) {
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxViewBody))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		if err = a.store.Put(r.Context(), p, body); err != nil {
			a.logger.Error("Failed to store view", "path", p, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to store view")
			return
		}
		a.views.Reset()
		a.logger.Info("View saved via API", "path", store.Key(p))
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, scopeViewsWrite) {
			return
		}
		err := a.store.Delete(r.Context(), p)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "View not found")
			return
		}
		if err != nil {
			a.logger.Error("Failed to delete view", "path", p, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete view")
			return
		}
		a.views.Reset()
		a.logger.Info("View deleted via API", "path", store.Key(p))
		w.WriteHeader(http.StatusNoContent)

	default:
		allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleFlush drops the finder cache and all parsed templates.
func (a *ViewAPI) handleFlush(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeViewsWrite) {
		return
	}
	a.views.Reset()
	a.logger.Info("View caches flushed via API")
	w.WriteHeader(http.StatusNoContent)
}

func (a *ViewAPI) handleExists(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeViewsRead) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'name' query parameter")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"name": name, "exists": a.views.Exists(name)})
}

// handleRender renders the named view with the JSON object in the body as
// its data and returns the output as text.
func (a *ViewAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeViewsRead) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'name' query parameter")
		return
	}

	data := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxViewBody)).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	out, err := renderView(a.views, name, data)
	if err != nil {
		respondWithError(w, statusForViewError(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

type syncRequest struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
}

func (a *ViewAPI) decodeSync(w http.ResponseWriter, r *http.Request) (syncRequest, bool) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dir == "" {
		respondWithError(w, http.StatusBadRequest, "Request body must be a JSON object with a 'dir' field")
		return req, false
	}
	return req, true
}

// handleImport copies a directory tree into the store.
func (a *ViewAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeViewsWrite) || !a.requireStore(w) {
		return
	}
	req, ok := a.decodeSync(w, r)
	if !ok {
		return
	}
	n, err := a.store.Import(r.Context(), req.Dir, req.Prefix, a.extensions()...)
	if err != nil {
		a.logger.Error("View import failed", "dir", req.Dir, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Import failed: %v", err))
		return
	}
	a.views.Reset()
	respondWithJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// handleExport writes every stored view below a directory.
func (a *ViewAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeViewsRead) || !a.requireStore(w) {
		return
	}
	req, ok := a.decodeSync(w, r)
	if !ok {
		return
	}
	n, err := a.store.Export(r.Context(), req.Dir)
	if err != nil {
		a.logger.Error("View export failed", "dir", req.Dir, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"exported": n})
}

// handleEngines reports the extension bindings and registered engines.
func (a *ViewAPI) handleEngines(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeViewsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"extensions": a.views.Extensions(),
		"engines":    a.views.EngineResolver().Keys(),
	})
}

func (a *ViewAPI) extensions() []string {
	bindings := a.views.Extensions()
	exts := make([]string, len(bindings))
	for i, b := range bindings {
		exts[i] = b.Extension
	}
	return exts
}

func renderView(views *bootstrap.Factory, name string, data map[string]any) (string, error) {
	v, err := views.Make(name, data)
	if err != nil {
		return "", err
	}
	return v.Render(nil)
}

func statusForViewError(err error) int {
	switch {
	case errors.Is(err, view.ErrNotFound), errors.Is(err, view.ErrInvalidName):
		return http.StatusNotFound
	case errors.Is(err, view.ErrUnknownExtension), errors.Is(err, view.ErrUnknownEngine):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
