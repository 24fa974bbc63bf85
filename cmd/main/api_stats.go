package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS view_stats (
    view_name       TEXT    PRIMARY KEY,
    renders         INTEGER NOT NULL DEFAULT 0,
    failures        INTEGER NOT NULL DEFAULT 0,
    first_rendered  INTEGER NOT NULL,
    last_rendered   INTEGER NOT NULL
);
`

// ViewStats is the per-view render counter row.
type ViewStats struct {
	View          string    `json:"view"`
	Renders       int64     `json:"renders"`
	Failures      int64     `json:"failures"`
	FirstRendered time.Time `json:"first_rendered"`
	LastRendered  time.Time `json:"last_rendered"`
}

// StatsSummary provides a high-level overview of all collected stats.
type StatsSummary struct {
	TotalRenders  int64 `json:"total_renders"`
	TotalFailures int64 `json:"total_failures"`
	UniqueViews   int64 `json:"unique_views"`
}

// StatsAPI records and reports view render counts.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	if _, err := db.Exec(statsSchema); err != nil {
		return fmt.Errorf("could not create stats schema: %w", err)
	}
	return nil
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{db: db, logger: logger}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/top_views", s.handleTopViews)
}

// Record counts one render attempt of name. A non-nil renderErr counts as
// a failure.
func (s *StatsAPI) Record(ctx context.Context, name string, renderErr error) error {
	now := time.Now().UnixNano()
	var failed int64
	if renderErr != nil {
		failed = 1
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO view_stats (view_name, renders, failures, first_rendered, last_rendered) VALUES (?, 1, ?, ?, ?)
        ON CONFLICT(view_name) DO UPDATE SET renders = renders + 1, failures = failures + excluded.failures, last_rendered = excluded.last_rendered
    `, name, failed, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert view_stats: %w", err)
	}
	return nil
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}
	var summary StatsSummary
	err := s.db.QueryRowContext(r.Context(),
		"SELECT COALESCE(SUM(renders), 0), COALESCE(SUM(failures), 0), COUNT(*) FROM view_stats",
	).Scan(&summary.TotalRenders, &summary.TotalFailures, &summary.UniqueViews)
	if err != nil {
		s.logger.Error("Failed to query stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopViews(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}
	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l < limit {
		limit = l
	}

	rows, err := s.db.QueryContext(r.Context(),
		"SELECT view_name, renders, failures, first_rendered, last_rendered FROM view_stats ORDER BY renders DESC, view_name LIMIT ?", limit)
	if err != nil {
		s.logger.Error("Failed to query top views", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := []ViewStats{}
	for rows.Next() {
		var st ViewStats
		var first, last int64
		if err = rows.Scan(&st.View, &st.Renders, &st.Failures, &first, &last); err != nil {
			s.logger.Error("Failed to scan top views", "error", err)
			continue
		}
		st.FirstRendered = time.Unix(0, first).UTC()
		st.LastRendered = time.Unix(0, last).UTC()
		results = append(results, st)
	}
	respondWithJSON(w, http.StatusOK, results)
}
