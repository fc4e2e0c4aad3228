// Package server provides the HTTP REST API of the matching engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/catalog"
	"github.com/jonathan/talent-match/internal/config"
	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/server/middleware"
	"github.com/jonathan/talent-match/internal/server/ratelimit"
)

const (
	maxBodyBytes     = 1 << 20
	maxDocumentBytes = 16 << 20

	requestIDHeader = "X-Request-ID"
)

// Dependencies are the services the API fronts. Extractions, Limiter,
// Metrics and Tokens are optional.
type Dependencies struct {
	Catalog     *catalog.Catalog
	Coordinator *ranking.Coordinator
	Extractions *extraction.Manager
	Limiter     *ratelimit.Limiter
	Metrics     *observability.Metrics
	Tokens      middleware.TokenValidator
	Logger      *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	cfg         config.ServerConfig
	catalog     *catalog.Catalog
	coordinator *ranking.Coordinator
	extractions *extraction.Manager
	rateLimiter *ratelimit.Limiter
	metrics     *observability.Metrics
	tokens      middleware.TokenValidator
	logger      *zap.Logger
}

// New creates a new server instance
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		cfg:         cfg,
		catalog:     deps.Catalog,
		coordinator: deps.Coordinator,
		extractions: deps.Extractions,
		rateLimiter: deps.Limiter,
		metrics:     deps.Metrics,
		tokens:      deps.Tokens,
		logger:      logger.Named(deps.Logger, "http"),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.handle("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", observability.TagRoute(s.metrics.Handler()))

	// Candidates
	s.handle("POST /profiles/normalize", s.handleNormalizeProfile)
	s.handle("PUT /candidates/{id}/profile", s.handleSaveProfile)
	s.handle("GET /candidates/{id}/profile", s.handleGetProfile)
	s.handle("DELETE /candidates/{id}", s.handleDeleteProfile)
	s.handle("GET /candidates/{id}/jobs", s.handleRankJobs)

	// Jobs
	s.handle("POST /jobs/normalize", s.handleNormalizeJob)
	s.handle("PUT /jobs/{id}", s.handleSaveJob)
	s.handle("GET /jobs/{id}", s.handleGetJob)
	s.handle("DELETE /jobs/{id}", s.handleDeleteJob)
	s.handle("GET /jobs/{id}/candidates", s.handleRankCandidates)

	// Matches
	s.handle("GET /jobs/{job_id}/candidates/{candidate_id}/match", s.handleGetMatch)
	s.handle("GET /jobs/{job_id}/candidates/{candidate_id}/status", s.handleMatchStatus)
	s.handle("POST /invalidate", s.handleInvalidate)

	// Taxonomy
	s.handle("GET /taxonomy", s.handleListTaxonomy)
	s.handle("GET /taxonomy/resolve", s.handleResolve)
	s.handle("POST /taxonomy/skills", s.handleDefineSkill)
	s.handle("POST /taxonomy/synonyms", s.handleRegisterSynonym)

	// Extraction
	s.handle("POST /extractions", s.handleSubmitExtraction)
	s.handle("GET /extractions/{id}", s.handleGetExtraction)
	s.handle("DELETE /extractions/{id}", s.handleCancelExtraction)
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, observability.TagRoute(fn))
}

// Handler returns the routed API with its middleware chain applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.tokens != nil {
		h = middleware.AuthMiddleware(s.tokens, "/health", "/metrics")(h)
	}
	h = s.withCORS(h)
	h = s.withLogging(h)
	h = s.withRateLimit(h)
	return s.metrics.Middleware(h)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowAll := slices.Contains(s.cfg.CORSOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, Location, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if !s.rateLimiter.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)

		if !allowed {
			_, route := s.mux.Handler(r)
			s.metrics.RecordRateLimited(route)
			s.rateLimitResponse(w, clientID, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		}
		if identity, ok := middleware.IdentityFrom(r.Context()); ok {
			fields = append(fields, zap.String("subject", identity.Subject))
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to a status. Server errors are logged and not echoed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.errorResponse(w, status, http.StatusText(status))
		return
	}
	s.errorResponse(w, status, err.Error())
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// ifMatch parses an optional If-Match revision precondition.
func ifMatch(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	rev, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || rev < 0 {
		return nil, &ErrValidation{Field: "If-Match", Message: "must be a revision number"}
	}
	return &rev, nil
}

func setETag(w http.ResponseWriter, revision int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(revision, 10)))
}

// rankOptions parses limit, offset and include_inactive.
func rankOptions(r *http.Request) (ranking.RankOptions, error) {
	q := r.URL.Query()
	var opts ranking.RankOptions

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, &ErrValidation{Field: p.name, Message: "must be a non-negative integer"}
		}
		*p.dst = n
	}

	if raw := q.Get("include_inactive"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, &ErrValidation{Field: "include_inactive", Message: "must be a boolean"}
		}
		opts.IncludeInactive = b
	}
	return opts, nil
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID string, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := int((info.RetryAfter + time.Second - 1) / time.Second)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded",
		zap.String("client", clientID),
		zap.Int("limit", info.Limit))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
