package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/veritas/internal/admission"
	"github.com/rahul/veritas/internal/agent"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rs/cors"
)

const maxBodyBytes = 64 << 10

// HTTPServer exposes the pipeline as a JSON API:
//
//	POST /v1/query   {"query": "...", "enable_charts": false}
//	GET  /v1/status  process status
//	GET  /healthz
//	GET  /metrics    Prometheus exposition
type HTTPServer struct {
	Answerer       Answerer
	Admission      *admission.Controller
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	Status         *observability.Status
	CORSOrigins    []string
	RequestTimeout time.Duration

	srv *http.Server
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler builds the routed, CORS-wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	query := http.Handler(http.HandlerFunc(s.handleQuery))
	if s.Admission != nil {
		query = admission.Middleware(s.Admission, admission.ClientKey, func(admission.Decision) {
			s.Status.Reject()
		})(query)
	}
	mux.Handle("POST /v1/query", query)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
	})
	return c.Handler(mux)
}

func (s *HTTPServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q agent.Query
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	ctx := r.Context()
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	resp, err := s.Answerer.Answer(ctx, q)
	if err != nil {
		code := StatusFor(err)
		s.Logger.Slog().WarnContext(ctx, "query failed",
			slog.Int("status", code),
			slog.String("error", err.Error()),
		)
		writeJSON(w, code, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Status == nil {
		writeJSON(w, http.StatusOK, observability.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.Status.Snapshot())
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to 30 seconds.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Slog().Info("http api listening", slog.String("addr", addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
