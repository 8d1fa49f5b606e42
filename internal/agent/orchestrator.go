package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/veritas/internal/observability"
)

// Metadata describes how a response was produced.
type Metadata struct {
	ModelsUsed      map[string]string `json:"models_used"`
	ExecutionTime   float64           `json:"execution_time"`
	ExecutionTimeMS int64             `json:"execution_time_ms"`
	Degraded        bool              `json:"degraded"`
	DegradedReason  string            `json:"degraded_reason,omitempty"`
	EnableCharts    bool              `json:"enable_charts"`
	RequestID       string            `json:"request_id"`
}

// Response is the answer to one Query.
type Response struct {
	Answer     string            `json:"answer"`
	Provenance []ProvenanceEntry `json:"provenance"`
	Metadata   Metadata          `json:"metadata"`
}

// Orchestrator answers queries end to end: executor, then formatter.
type Orchestrator struct {
	Executor  *Executor
	Formatter Formatter
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Status    *observability.Status
}

// Answer runs a fresh workflow for q. Errors are limited to ErrEmptyQuery,
// ErrPlanning, ErrRoutingInvariant and context cancellation; every other
// problem is folded into a still-successful response.
func (o *Orchestrator) Answer(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}

	requestID := uuid.NewString()
	ctx = observability.WithRequestID(ctx, requestID)
	o.Status.Begin(q.Text)
	defer o.Status.End()

	start := time.Now()
	state := NewWorkflowState(q)
	if err := o.Executor.Run(ctx, state); err != nil {
		o.Metrics.RecordRequest(requestStatus(err))
		o.Logger.Slog().ErrorContext(ctx, "request failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	answer, provenance := o.Formatter.Format(ctx, state.Messages)
	if provenance == nil {
		provenance = []ProvenanceEntry{}
	}
	took := time.Since(start)

	status := "ok"
	if state.Degraded {
		status = "degraded"
	}
	o.Metrics.RecordRequest(status)
	o.Logger.Slog().InfoContext(ctx, "request answered",
		slog.String("request_id", requestID),
		slog.Int("steps", state.Plan.Len()),
		slog.Int("provenance", len(provenance)),
		slog.Duration("took", took),
	)

	return &Response{
		Answer:     answer,
		Provenance: provenance,
		Metadata: Metadata{
			ModelsUsed:      state.ModelUsage,
			ExecutionTime:   took.Seconds(),
			ExecutionTimeMS: took.Milliseconds(),
			Degraded:        state.Degraded,
			DegradedReason:  state.DegradedReason,
			EnableCharts:    q.EnableCharts,
			RequestID:       requestID,
		},
	}, nil
}

func requestStatus(err error) string {
	switch {
	case errors.Is(err, ErrPlanning):
		return "planning_failed"
	case errors.Is(err, ErrRoutingInvariant):
		return "routing_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
