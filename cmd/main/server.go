package main

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/viewkit/pkg/bootstrap"
	"github.com/CTAG07/viewkit/pkg/store"
	"github.com/CTAG07/viewkit/pkg/view"
)

// nsParam selects a namespace for the requested view.
const nsParam = "ns"

type Server struct {
	config    *Config
	db        *sql.DB
	logger    *slog.Logger
	views     *bootstrap.Factory
	store     *store.Store
	authAPI   *AuthAPI
	viewAPI   *ViewAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	viewMux   *http.ServeMux
	apiMux    *http.ServeMux
}

// NewServer wires the view handler and the management API. st may be nil.
func NewServer(config *Config, logger *slog.Logger, db *sql.DB, views *bootstrap.Factory, st *store.Store, actionChan chan string) *Server {
	server := &Server{
		config:    config,
		db:        db,
		logger:    logger,
		views:     views,
		store:     st,
		authAPI:   NewAuthAPI(db, logger),
		viewAPI:   NewViewAPI(views, st, logger),
		statsAPI:  NewStatsAPI(db, logger),
		serverAPI: NewServerAPI(config, actionChan, logger),
		viewMux:   http.NewServeMux(),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.viewAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Every /api/ route passes through authentication first.
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))
	server.apiMux.HandleFunc("/healthz", handleHealth)

	server.viewMux.HandleFunc("/favicon.ico", handleFavicon)
	server.viewMux.HandleFunc("/", server.handleView)

	return server
}

// handleView maps the request path onto a view name ("/blog/post" renders
// "blog.post") and the query string onto its data.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	name := viewNameFromRequest(r, s.config.IndexView)
	out, err := renderView(s.views, name, queryData(r))

	if recErr := s.statsAPI.Record(r.Context(), name, err); recErr != nil {
		s.logger.Warn("Failed to record view stats", "view", name, "error", recErr)
	}

	if err != nil {
		code := statusForViewError(err)
		if code == http.StatusInternalServerError {
			s.logger.Error("Failed to render view", "view", name, "error", err)
		} else {
			s.logger.Debug("View not served", "view", name, "status", code, "error", err)
		}
		http.Error(w, http.StatusText(code), code)
		return
	}

	s.logger.Debug("Serving view", "view", name, "remote_addr", r.RemoteAddr)
	for k, v := range s.config.Headers {
		w.Header().Set(k, v)
	}
	_, _ = io.WriteString(w, out)
}

func viewNameFromRequest(r *http.Request, index string) string {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		name = index
	}
	if ns := r.URL.Query().Get(nsParam); ns != "" {
		name = ns + view.HintPathDelimiter + name
	}
	return name
}

// queryData turns the query string into view data. Repeated parameters
// become string slices.
func queryData(r *http.Request) map[string]any {
	data := map[string]any{}
	for k, v := range r.URL.Query() {
		if k == nsParam {
			continue
		}
		if len(v) == 1 {
			data[k] = v[0]
		} else {
			data[k] = v
		}
	}
	return data
}

func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
