// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/pipeline"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*model.RunResult, error)
}

// PendingSource lists companies awaiting a run.
type PendingSource interface {
	GetPending(ctx context.Context, batchSize int) ([]model.Company, error)
	PendingCount(ctx context.Context) (int, error)
}

const defaultPendingLimit = 50

// RunRequest is the POST /runs body. Omitted fields take the defaults.
type RunRequest struct {
	BatchSize     *int `json:"batch_size"`
	MaxPerCompany *int `json:"max_per_company"`
	MinScore      *int `json:"min_score"`
}

// Options resolves the request against the defaults.
func (r RunRequest) Options() pipeline.Options {
	o := pipeline.DefaultOptions()
	if r.BatchSize != nil {
		o.BatchSize = *r.BatchSize
	}
	if r.MaxPerCompany != nil {
		o.MaxPerCompany = *r.MaxPerCompany
	}
	if r.MinScore != nil {
		o.MinScore = *r.MinScore
	}
	return o
}

type runResponse struct {
	Result *model.RunResult `json:"result"`
	Error  string           `json:"error,omitempty"`
}

type pendingResponse struct {
	Count     int             `json:"count"`
	Companies []model.Company `json:"companies"`
}

type handler struct {
	runner  Runner
	pending PendingSource
}

// NewRouter builds the HTTP handler. An empty origins list allows any origin.
func NewRouter(runner Runner, pending PendingSource, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &handler{runner: runner, pending: pending}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Post("/runs", h.run)
	r.Get("/companies/pending", h.listPending)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts := req.Options()
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.runner.Run(r.Context(), opts)
	if err != nil {
		zap.L().Error("server: run failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, runResponse{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Result: res})
}

func (h *handler) listPending(w http.ResponseWriter, r *http.Request) {
	limit := defaultPendingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > pipeline.MaxBatchSize {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(pipeline.MaxBatchSize))
			return
		}
		limit = n
	}

	count, err := h.pending.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	companies, err := h.pending.GetPending(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}
	writeJSON(w, http.StatusOK, pendingResponse{Count: count, Companies: companies})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
