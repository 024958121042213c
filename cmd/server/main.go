package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upreach/ruleengine/internal/config"
	"github.com/upreach/ruleengine/internal/logger"
	"github.com/upreach/ruleengine/internal/metrics"
	"github.com/upreach/ruleengine/rules"
)

type Server struct {
	cfg      *config.Config
	engine   *rules.Engine
	enricher *rules.Enricher
	metrics  *metrics.Collector
	registry *prometheus.Registry
	router   *chi.Mux

	db        *sql.DB                  // non-nil for the postgres backend
	fileStore *rules.FileDocumentStore // non-nil for the dir backend
	store     rules.DocumentStore
}

func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db
		s.store = rules.NewPostgresDocumentStore(db)

	case config.BackendDir:
		fileStore, err := rules.NewFileDocumentStore(cfg.Store.RulesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules directory: %w", err)
		}
		if err := fileStore.Watch(); err != nil {
			return nil, fmt.Errorf("failed to watch rules directory: %w", err)
		}
		s.fileStore = fileStore
		s.store = fileStore

	default:
		s.store = rules.NewInMemoryDocumentStore()
	}

	cache := rules.NewInMemoryDocumentCache(rules.CacheConfig{TTL: cfg.Store.CacheTTL})
	s.engine = rules.NewEngineWithCache(s.store, cache)

	if len(cfg.DerivedFields) > 0 {
		enricher, err := rules.NewEnricher(cfg.DerivedFields)
		if err != nil {
			return nil, fmt.Errorf("failed to compile derived fields: %w", err)
		}
		s.enricher = enricher
	}

	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.NewCollector(s.registry)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/execute", s.handleExecute)
	r.Post("/api/v1/validate", s.handleValidate)
	r.Get("/api/v1/rules/{ruleName}/versions", s.handleListVersions)

	r.Route("/api/v1/documents", func(r chi.Router) {
		r.Post("/", s.handleUploadDocument)
		r.Get("/{name}/{version}", s.handleGetDocument)
	})

	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.fileStore != nil {
		s.fileStore.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"backend": s.cfg.Store.Backend,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule == "" || req.Version == "" {
		respondError(w, http.StatusBadRequest, "rule and version are required", nil)
		return
	}
	if req.Input == nil {
		respondError(w, http.StatusBadRequest, "input is required", nil)
		return
	}

	input := req.Input
	if s.enricher != nil {
		enriched, failures := s.enricher.Enrich(input)
		for _, failure := range failures {
			logger.Warn("input enrichment failed", "rule", req.Rule, "error", failure)
		}
		input = enriched
	}

	start := time.Now()
	decision, err := s.engine.Execute(req.Rule, req.Version, input)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordExecution(req.Rule, "error", elapsed.Seconds())
		status := http.StatusUnprocessableEntity
		if rules.IsNotFound(err) {
			status = http.StatusNotFound
		}
		respondError(w, status, "execution failed", err)
		return
	}
	s.metrics.RecordExecution(req.Rule, "ok", elapsed.Seconds())
	s.metrics.DocumentsLoaded.Set(float64(s.engine.CachedDocuments()))

	// The decision itself is deterministic; the envelope adds the audit
	// identifiers a persistence collaborator needs.
	respondJSON(w, http.StatusOK, ExecuteResponse{
		DecisionID:     uuid.NewString(),
		Rule:           req.Rule,
		Decision:       decision,
		EvaluationTime: elapsed.String(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Document) == 0 {
		respondError(w, http.StatusBadRequest, "document is required", nil)
		return
	}

	issues := s.engine.Validate(req.Document)
	if len(issues) > 0 {
		s.metrics.RecordValidation("invalid")
		respondJSON(w, http.StatusOK, ValidateResponse{Valid: false, Issues: issues})
		return
	}
	s.metrics.RecordValidation("valid")
	respondJSON(w, http.StatusOK, ValidateResponse{Valid: true, Issues: []rules.Issue{}})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	ruleName := chi.URLParam(r, "ruleName")

	versions, err := s.engine.ListVersions(ruleName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list versions", err)
		return
	}
	if versions == nil {
		versions = []string{}
	}
	respondJSON(w, http.StatusOK, VersionsResponse{Rule: ruleName, Versions: versions})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req UploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	doc, err := rules.LoadDocument(req.Document)
	if err != nil {
		s.metrics.RecordValidation("invalid")
		respondError(w, http.StatusBadRequest, "document failed validation", err)
		return
	}
	s.metrics.RecordValidation("valid")

	if err := s.store.Put(doc); err != nil {
		status := http.StatusInternalServerError
		if rules.IsConflict(err) {
			status = http.StatusConflict
		}
		respondError(w, status, "failed to store document", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"name":    doc.Name,
		"version": doc.Version,
		"rules":   len(doc.Rules),
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	doc, err := s.store.Get(name, version)
	if err != nil {
		respondError(w, http.StatusNotFound, "document not found", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Raw())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	// Marshal before touching the response so an unencodable payload
	// becomes a 500, not a 200 with a truncated body.
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		logger.ErrorHttp5xx()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal encoding failure"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if status >= 500 {
		logger.ErrorHttp5xx()
	} else if status >= 400 {
		logger.WarnHttp4xx()
	}

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.ListenAddress, "backend", cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}
	logger.Info("server stopped")
}
