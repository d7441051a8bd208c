// Package server exposes the broker over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redbco/redb-broker/pkg/health"
	"github.com/redbco/redb-broker/pkg/logger"
	"github.com/redbco/redb-broker/pkg/provider"
)

const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests onto a provider.
type Server struct {
	provider *provider.Provider
	logger   *logger.Logger
	gatherer prometheus.Gatherer
	router   *mux.Router
}

// NewServer builds the router. gatherer may be nil, in which case /metrics
// serves the default registry.
func NewServer(p *provider.Provider, log *logger.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		provider: p,
		logger:   log,
		gatherer: gatherer,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	s.setupMiddleware()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/connections", s.handleConnections).Methods(http.MethodGet)
	v1.HandleFunc("/call/{name}/{operation}", s.handleCall).Methods(http.MethodPost)
	v1.HandleFunc("/query/{name}", s.handleQuery).Methods(http.MethodPost)
}

func (s *Server) setupMiddleware() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			s.logger.WithFields(map[string]string{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   strconv.Itoa(rec.status),
				"duration": time.Since(start).Round(time.Microsecond).String(),
			}).Debug("HTTP request")
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// CallRequest is the body of a call request.
type CallRequest struct {
	Args []interface{} `json:"args"`
}

// CallResponse carries the operation result; null on any failure.
type CallResponse struct {
	Result interface{} `json:"result"`
}

// QueryRequest is the body of a query request.
type QueryRequest struct {
	SQL    string                 `json:"sql"`
	Params map[string]interface{} `json:"params"`
}

// QueryResponse carries the rows of a query or the affected row count.
type QueryResponse struct {
	Columns      []string                 `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
	LastInsertID int64                    `json:"last_insert_id,omitempty"`
}

// ErrorResponse is returned for requests the broker cannot route.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CallRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wrapper := s.provider.Get(r.Context(), vars["name"])
	if wrapper == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown connection %q", vars["name"]))
		return
	}

	args := make([]interface{}, len(req.Args))
	for i, a := range req.Args {
		args[i] = normalizeNumber(a)
	}
	result := wrapper.Invoke(r.Context(), vars["operation"], args...)
	s.writeJSON(w, http.StatusOK, CallResponse{Result: result})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SQL == "" {
		s.writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	wrapper := s.provider.Get(r.Context(), name)
	if wrapper == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown connection %q", name))
		return
	}

	params := make(map[string]interface{}, len(req.Params))
	for k, v := range req.Params {
		params[k] = normalizeNumber(v)
	}

	stmt := wrapper.Query(r.Context(), req.SQL, params)
	if stmt == nil {
		s.writeError(w, http.StatusBadGateway, "query failed")
		return
	}
	defer stmt.Close()

	rows, err := stmt.Fetch()
	if err != nil {
		s.logger.WithFields(map[string]string{"name": name, "error": err.Error()}).Error("Failed to read rows")
		s.writeError(w, http.StatusBadGateway, "query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Columns:      stmt.Columns(),
		Rows:         rows,
		RowsAffected: stmt.RowsAffected(),
		LastInsertID: stmt.LastInsertID(),
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"names":       s.provider.Names(),
		"stats":       s.provider.Stats(),
		"connections": s.provider.Connections(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checker := health.NewChecker()
	for _, probe := range s.provider.Probe(r.Context()) {
		name := probe.Name
		if name == "" {
			c := probe.Connection
			name = fmt.Sprintf("%s://%s:%d/%s", c.Store, c.Host, c.Port, c.Database)
		}
		checker.Record(name, probe.Err, probe.Latency)
	}

	status := checker.Overall()
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "redb-broker",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checker.Checks(),
		"stats":     s.provider.Stats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// normalizeNumber turns integral JSON numbers back into int64 so that store
// clients see 5 rather than 5.0.
func normalizeNumber(v interface{}) interface{} {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
