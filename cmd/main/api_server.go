package main

import (
	"log/slog"
	"net/http"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the process control handlers.
type ServerAPI struct {
	config     *Config
	actionChan chan string
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(config *Config, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		config:     config,
		actionChan: actionChan,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/version", a.handleVersion)
	mux.HandleFunc("/api/server/shutdown", a.handleShutdown)
	mux.HandleFunc("/api/server/restart", a.handleRestart)
}

// handleHealth is mounted outside the auth middleware.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the live server configuration. Edits go through
// config.json and a restart.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeServerControl) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.config)
}

func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionShutdown, "Server is shutting down...")
}

// handleRestart reloads config.json and the view configuration.
func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionRestart, "Server is restarting...")
}

func (a *ServerAPI) sendAction(w http.ResponseWriter, r *http.Request, action, message string) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeServerControl) {
		return
	}
	a.logger.Warn("Server action requested via API", "action", action)
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": message})

	go func() {
		a.actionChan <- action
	}()
}
