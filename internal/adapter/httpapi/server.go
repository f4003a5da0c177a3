// Package httpapi exposes the built dataset over a JSON API alongside the
// usual health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"covidboard/internal/config"
	"covidboard/internal/domain"
	"covidboard/internal/pipeline"
)

// DatasetProvider hands out the latest built dataset snapshot.
type DatasetProvider interface {
	Snapshot() *domain.Dataset
	CheckReadiness(ctx context.Context) error
}

// Server exposes the dataset API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	provider   DatasetProvider
	cfg        *config.Config
	logger     *slog.Logger
}

// NewServer creates the API server. All /api/v1 routes return 503 until the
// first build completes.
func NewServer(addr string, provider DatasetProvider, cfg *config.Config, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/cases", s.handleSeries(func(ds *domain.Dataset) []domain.Record { return ds.Cases }))
	mux.HandleFunc("GET /api/v1/deaths", s.handleSeries(func(ds *domain.Dataset) []domain.Record { return ds.Deaths }))
	mux.HandleFunc("GET /api/v1/vaccinations", s.handleSeries(func(ds *domain.Dataset) []domain.Record { return ds.Vaccinations }))
	mux.HandleFunc("GET /api/v1/cases/continents", s.handleContinents(func(ds *domain.Dataset) []domain.ContinentShare { return ds.CaseContinents }))
	mux.HandleFunc("GET /api/v1/deaths/continents", s.handleContinents(func(ds *domain.Dataset) []domain.ContinentShare { return ds.DeathContinents }))
	mux.HandleFunc("GET /api/v1/usa", s.handleUSA)
	mux.HandleFunc("GET /api/v1/excess", s.handleExcess)
	mux.HandleFunc("GET /api/v1/tables/top", s.handleTop)
	mux.HandleFunc("GET /api/v1/tables/watchlist", s.handleWatchlist)
	mux.HandleFunc("GET /api/v1/tables/cfr", s.handleCaseFatality)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.provider.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// dataset returns the current snapshot, or writes 503 and returns nil when
// no build has completed yet.
func (s *Server) dataset(w http.ResponseWriter) *domain.Dataset {
	ds := s.provider.Snapshot()
	if ds == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no dataset built yet"})
		return nil
	}
	return ds
}

func (s *Server) handleSeries(pick func(*domain.Dataset) []domain.Record) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := s.dataset(w)
		if ds == nil {
			return
		}
		records := pick(ds)
		if country := r.URL.Query().Get("country"); country != "" {
			filtered := make([]domain.Record, 0)
			for _, rec := range records {
				if rec.Country == country {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}
		writeJSON(w, http.StatusOK, seriesResponse{BuiltAt: ds.BuiltAt, Records: records})
	}
}

func (s *Server) handleContinents(pick func(*domain.Dataset) []domain.ContinentShare) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := s.dataset(w)
		if ds == nil {
			return
		}
		writeJSON(w, http.StatusOK, continentsResponse{BuiltAt: ds.BuiltAt, Shares: pick(ds)})
	}
}

func (s *Server) handleUSA(w http.ResponseWriter, _ *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}
	writeJSON(w, http.StatusOK, usaResponse{BuiltAt: ds.BuiltAt, States: ds.USA})
}

func (s *Server) handleExcess(w http.ResponseWriter, _ *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}
	writeJSON(w, http.StatusOK, excessResponse{BuiltAt: ds.BuiltAt, Rows: ds.Excess})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	q := r.URL.Query()
	var records []domain.Record
	switch dataset := q.Get("dataset"); dataset {
	case "", "cases":
		records = ds.Cases
	case "deaths":
		records = ds.Deaths
	case "vaccinations":
		records = ds.Vaccinations
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown dataset " + strconv.Quote(dataset)})
		return
	}

	primary := pipeline.Metric(q.Get("metric"))
	if primary == "" {
		primary = pipeline.MetricCumulative
	}
	secondary := pipeline.Metric(q.Get("secondary"))
	if secondary == "" {
		secondary = pipeline.MetricPerMillion
	}
	if !primary.Valid() || !secondary.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown metric"})
		return
	}

	n := 10
	if raw := q.Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}

	writeJSON(w, http.StatusOK, tableResponse{
		BuiltAt: ds.BuiltAt,
		Date:    domain.LatestDate(records),
		Rows:    pipeline.TopN(records, primary, secondary, n),
	})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, _ *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}
	wl := s.cfg.Watchlist
	writeJSON(w, http.StatusOK, tableResponse{
		BuiltAt: ds.BuiltAt,
		Date:    domain.LatestDate(ds.Cases),
		Rows:    pipeline.WatchlistRanking(ds.Cases, wl.Countries, wl.WindowDays),
	})
}

func (s *Server) handleCaseFatality(w http.ResponseWriter, r *http.Request) {
	ds := s.dataset(w)
	if ds == nil {
		return
	}

	q := r.URL.Query()
	start := s.cfg.CFRStartDate
	if raw := q.Get("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be YYYY-MM-DD"})
			return
		}
		start = parsed
	}
	oecdOnly := q.Get("oecd") == "true"

	writeJSON(w, http.StatusOK, tableResponse{
		BuiltAt: ds.BuiltAt,
		Date:    domain.LatestDate(ds.Deaths),
		Rows:    pipeline.CaseFatality(ds.Deaths, ds.Cases, start, pipeline.DefaultCFRLag, oecdOnly),
	})
}

type seriesResponse struct {
	BuiltAt time.Time       `json:"built_at"`
	Records []domain.Record `json:"records"`
}

type continentsResponse struct {
	BuiltAt time.Time               `json:"built_at"`
	Shares  []domain.ContinentShare `json:"shares"`
}

type usaResponse struct {
	BuiltAt time.Time            `json:"built_at"`
	States  []domain.StateRecord `json:"states"`
}

type excessResponse struct {
	BuiltAt time.Time         `json:"built_at"`
	Rows    []domain.ExcessRow `json:"rows"`
}

type tableResponse struct {
	BuiltAt time.Time           `json:"built_at"`
	Date    time.Time           `json:"date"`
	Rows    []pipeline.TableRow `json:"rows"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
