// Package server exposes the engine over HTTP and gRPC and hot-reloads
// the rule file.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/engine"
	"github.com/Mofasaz/aegisai-web/internal/metrics"
	"github.com/Mofasaz/aegisai-web/internal/rules"
	"github.com/Mofasaz/aegisai-web/internal/tracing"
	"github.com/Mofasaz/aegisai-web/internal/upstream"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config is the listener configuration.
type Config struct {
	Addr            string        `koanf:"addr" validate:"required"`
	GRPCAddr        string        `koanf:"grpc_addr"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Auth            AuthConfig    `koanf:"auth"`
}

type api struct {
	engine   *engine.Engine
	auth     AuthConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewRouter mounts the JSON API for eng.
func NewRouter(eng *engine.Engine, cfg Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	a := &api{engine: eng, auth: cfg.Auth, validate: validator.New(), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware("aegis.http"))
	r.Use(countRequests)
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.Get("/healthz", a.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authenticate(cfg.Auth))

		r.Post("/ask", a.ask)
		r.Post("/assess", a.assess)
		r.Post("/analyze", a.analyze)
		r.Post("/narrative", a.narrative)
		r.Post("/attest", a.attest)
		r.Post("/anomalies/push", a.pushAnomalies)

		r.Get("/rules", a.listRules)
		r.Post("/rules", a.appendRule)
		r.Post("/rules/validate", a.validateRule)
		r.Post("/rules/draft", a.draftRule)
		r.Post("/rules/reload", a.reloadRules)
	})
	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v and runs struct validation.
func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps an engine error onto a status code.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pe  *rules.ParseError
		dup *rules.DuplicateRuleError
	)
	switch {
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pe), errors.Is(err, engine.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, upstream.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
