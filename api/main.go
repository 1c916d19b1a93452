package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/boletin-radar/internal/config"
	"github.com/DeafMist/boletin-radar/internal/elasticsearch"
	"github.com/DeafMist/boletin-radar/internal/logger"
)

// maxOffset caps from+size paging into the record index.
const maxOffset = 10_000

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	srv, err := newServer(cfg, log)
	if err != nil {
		log.Error("init api", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := serve(ctx, cfg.BindAddr, srv.routes(), log); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

// serve runs the HTTP server until ctx is done, then drains it.
func serve(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("api server starting", slog.String("addr", addr))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// recordIndex is the read side of the Elasticsearch record store.
type recordIndex interface {
	Health(ctx context.Context) error
	SearchRecords(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type server struct {
	log *slog.Logger
	cfg *config.API
	// records is nil when the scanner keeps its records outside
	// Elasticsearch; the record endpoints then answer 501.
	records recordIndex
}

func newServer(cfg *config.API, log *slog.Logger) (*server, error) {
	s := &server{log: log, cfg: cfg}
	if cfg.RecordStore != config.StoreElasticsearch {
		log.Warn("record listing needs the elasticsearch record store; /records is disabled",
			slog.String("record_store", cfg.RecordStore))
		return s, nil
	}

	es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}
	s.records = es
	return s, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.With(s.requireIndex).Get("/records", s.handleRecords)
	return r
}

func (s *server) requireIndex(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.records == nil {
			writeJSON(w, http.StatusNotImplemented, errorResponse{
				Error: fmt.Sprintf("records are only searchable with RECORD_STORE=%s, not %q", config.StoreElasticsearch, s.cfg.RecordStore),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "records": "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.records.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "records": "elasticsearch"})
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := s.records.SearchRecords(ctx, s.searchParams(r))
	if err != nil {
		s.log.Warn("search records", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// searchParams reads q, from and size, clamping paging to the configured
// limits.
func (s *server) searchParams(r *http.Request) elasticsearch.SearchParams {
	q := r.URL.Query()
	return elasticsearch.SearchParams{
		Query: strings.TrimSpace(q.Get("q")),
		From:  clampInt(q.Get("from"), 0, maxOffset),
		Size:  clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	}
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return min(value, max)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
