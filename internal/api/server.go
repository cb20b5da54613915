// Package api serves the dashboard HTTP API: snapshot and depositor record
// reads, cached APY figures, and bearer-secret cron trigger endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/observability"
	"circuit-vaults-service/internal/snapshotter"
	"circuit-vaults-service/internal/storage"
)

// ChartSource serves ordered snapshot rows for one vault. The ClickHouse
// mirror satisfies this when configured; the Postgres store is the fallback.
type ChartSource interface {
	GetByVault(ctx context.Context, vault string) ([]*domain.VaultSnapshot, error)
}

// SnapshotTrigger runs one snapshot tick over all vaults.
type SnapshotTrigger interface {
	Run(ctx context.Context) (*snapshotter.Result, error)
}

// BackfillTrigger runs one backfill pass: depositor events for every vault,
// then deposit records for the configured users.
type BackfillTrigger interface {
	BackfillDepositorEvents(ctx context.Context) (int, error)
	BackfillDeposits(ctx context.Context, users []string) (int, error)
}

// Config holds server wiring.
type Config struct {
	Charts        ChartSource
	Records       storage.VaultDepositorRecordStore
	Deposits      storage.DepositRecordStore
	AppState      *snapshotter.AppState
	Snapshots     SnapshotTrigger
	Backfill      BackfillTrigger
	BackfillUsers []string
	CronSecret    string
	Logger        *log.Logger
}

// Server is the dashboard HTTP API.
type Server struct {
	cfg    Config
	router *mux.Router
	logger *log.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: cfg.Logger,
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/vault-snapshots", s.handleVaultSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/vault-depositor-records", s.handleDepositorRecords).Methods(http.MethodGet)
	api.HandleFunc("/deposit-records", s.handleDepositRecords).Methods(http.MethodGet)
	api.HandleFunc("/apy-returns", s.handleAPYReturns).Methods(http.MethodGet)
	api.HandleFunc("/cron/vault-snapshots", s.requireSecret(s.handleCronSnapshots)).Methods(http.MethodGet)
	api.HandleFunc("/cron/backfill-deposits", s.requireSecret(s.handleCronBackfill)).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	s.router.Use(s.metricsMiddleware)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requireSecret gates cron endpoints behind a bearer secret. The comparison
// is constant time so response timing reveals nothing about the secret.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := []byte("Bearer " + s.cfg.CronSecret)
		got := []byte(r.Header.Get("Authorization"))
		if s.cfg.CronSecret == "" || subtle.ConstantTimeCompare(got, expected) != 1 {
			observability.DefaultMetrics.CronUnauthorized.Inc()
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		observability.RecordHTTPRequest(route, strconv.Itoa(rec.status), time.Since(started).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
