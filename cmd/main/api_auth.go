package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// authHeader carries the raw API key.
const authHeader = "X-Viewkit-Key"

// Scopes understood by the management API. "*" grants all of them.
const (
	scopeViewsRead     = "views:read"
	scopeViewsWrite    = "views:write"
	scopeStatsRead     = "stats:read"
	scopeServerControl = "server:control"
	scopeAuthManage    = "auth:manage"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

type contextKey string

const contextKeyScopes = contextKey("scopes")

// scopeSet is the set of scopes granted to a request.
type scopeSet map[string]struct{}

func newScopeSet(scopes ...string) scopeSet {
	set := make(scopeSet, len(scopes))
	for _, s := range scopes {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func (s scopeSet) has(scope string) bool {
	if _, master := s["*"]; master {
		return true
	}
	_, ok := s[scope]
	return ok
}

func (s scopeSet) list() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// AuthAPI guards the management API with hashed API keys stored in SQLite.
// While no key exists the API is open; the first key created is always a
// master key.
type AuthAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupAuthSchema(db *sql.DB) error {
	if _, err := db.Exec(authSchema); err != nil {
		return fmt.Errorf("could not create auth schema: %w", err)
	}
	return nil
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{db: db, logger: logger}
}

// RegisterRoutes sets up the /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// APIKeyInfo is returned when listing keys.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the body for creating a key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the raw key. It is shown exactly once.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate resolves the request's API key to its scopes and stores
// them in the request context.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes, err := a.scopesFor(r.Context(), r.Header.Get(authHeader))
		switch {
		case errors.Is(err, errUnauthorized):
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		case err != nil:
			a.logger.Error("Authenticate failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyScopes, scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errUnauthorized = errors.New("unauthorized")

func (a *AuthAPI) scopesFor(ctx context.Context, rawKey string) (scopeSet, error) {
	var keyCount int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&keyCount); err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}
	if keyCount == 0 {
		return newScopeSet("*"), nil
	}
	if rawKey == "" {
		return nil, errUnauthorized
	}

	var scopes string
	err := a.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query API key: %w", err)
	}
	return newScopeSet(strings.Fields(scopes)...), nil
}

// requireScope writes 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	scopes, _ := r.Context().Value(contextKeyScopes).(scopeSet)
	if scopes.has(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func (a *AuthAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	scopes, _ := r.Context().Value(contextKeyScopes).(scopeSet)
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": scopes.list()})
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listKeys(w, r)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		allowMethods(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodDelete) {
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	a.deleteKey(w, r, id)
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	rows, err := a.db.QueryContext(r.Context(), `SELECT id, description, scopes FROM api_keys ORDER BY id`)
	if err != nil {
		a.logger.Error("Failed to query API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var key APIKeyInfo
		var scopes string
		if err = rows.Scan(&key.ID, &key.Description, &scopes); err != nil {
			a.logger.Error("Failed to scan API key row", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process database results")
			return
		}
		key.Scopes = strings.Fields(scopes)
		keys = append(keys, key)
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.Error("Failed to generate API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}

	scopes, err := a.scopesForNewKey(r.Context(), req.Scopes)
	if err != nil {
		a.logger.Error("Failed to determine scopes for new key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	var id int
	err = a.db.QueryRowContext(r.Context(),
		`INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id`,
		hashAPIKey(rawKey), req.Description, scopes).Scan(&id)
	if err != nil {
		a.logger.Error("Failed to insert API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	a.logger.Info("API key created", "id", id, "scopes", scopes)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: rawKey, Scopes: strings.Fields(scopes)})
}

// scopesForNewKey returns the scope string stored for a new key. The first
// key is always a master key so the API can't lock itself out.
func (a *AuthAPI) scopesForNewKey(ctx context.Context, requested []string) (string, error) {
	var keyCount int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&keyCount); err != nil {
		return "", fmt.Errorf("failed to count keys: %w", err)
	}
	if keyCount == 0 {
		return "*", nil
	}
	return strings.Join(requested, " "), nil
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request, id int) {
	if !requireScope(w, r, scopeAuthManage) {
		return
	}
	if id == 1 {
		respondWithError(w, http.StatusBadRequest, "Cannot delete the primary master key (ID 1)")
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "vk_" + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
