package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeTrace       EventType = "trace"
	EventTypeToolCall    EventType = "tool_call"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeAdmission   EventType = "admission"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits typed events through slog. LLM exchanges are also appended
// to a JSONL file when a path is configured.
type Logger struct {
	base       *slog.Logger
	llmLogPath string
	maxSize    int64
	mu         sync.Mutex
}

// NewLogger wraps base. An empty llmLogPath disables the LLM transcript file.
func NewLogger(base *slog.Logger, llmLogPath string) *Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Logger{
		base:       base,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewSlog builds the process logger: JSON lines at the given level.
func NewSlog(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a config level name to a slog level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Slog exposes the underlying logger for components that log free-form.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.base
}

// Log emits evt. A nil Logger drops it.
func (l *Logger) Log(ctx context.Context, evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	attrs := []slog.Attr{slog.String("type", string(evt.Type))}
	if evt.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", evt.RequestID))
	}
	if evt.Agent != "" {
		attrs = append(attrs, slog.String("agent", evt.Agent))
	}
	if evt.Type != EventTypeLLM {
		attrs = append(attrs, slog.Any("data", evt.Data))
	}
	l.base.LogAttrs(ctx, slog.LevelInfo, "event", attrs...)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.base.Warn("failed to marshal llm event", slog.String("error", err.Error()))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.base.Warn("failed to create log directory", slog.String("error", err.Error()))
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.base.Warn("failed to open log file", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.base.Warn("failed to write to log file", slog.String("error", err.Error()))
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(ctx context.Context, requestID, kind string, steps int, model string) {
	l.Log(ctx, Event{
		Type:      EventTypePlan,
		RequestID: requestID,
		Agent:     "planner",
		Data: map[string]any{
			"kind":  kind,
			"steps": steps,
			"model": model,
		},
	})
}

func (l *Logger) LogStep(ctx context.Context, requestID string, step int, agent, status string, took time.Duration) {
	l.Log(ctx, Event{
		Type:      EventTypeStep,
		RequestID: requestID,
		Agent:     agent,
		Data: map[string]any{
			"step":        step,
			"status":      status,
			"duration_ms": took.Milliseconds(),
		},
	})
}

func (l *Logger) LogTraceDropped(ctx context.Context, message string, err error) {
	data := map[string]string{"message": message}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(ctx, Event{Type: EventTypeTrace, Data: data})
}

func (l *Logger) LogToolCall(ctx context.Context, requestID, agent, tool, args string) {
	l.Log(ctx, Event{
		Type:      EventTypeToolCall,
		RequestID: requestID,
		Agent:     agent,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogPolicyCheck(ctx context.Context, requestID, agent, tool, reason string) {
	l.Log(ctx, Event{
		Type:      EventTypePolicyCheck,
		RequestID: requestID,
		Agent:     agent,
		Data: map[string]string{
			"tool":   tool,
			"reason": reason,
		},
	})
}

func (l *Logger) LogAdmission(ctx context.Context, key, outcome string) {
	l.Log(ctx, Event{
		Type: EventTypeAdmission,
		Data: map[string]string{
			"client":  key,
			"outcome": outcome,
		},
	})
}

func (l *Logger) LogHeartbeat(ctx context.Context) {
	l.Log(ctx, Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(ctx context.Context, requestID, agent string, prompt any, response string, toolCalls any) {
	l.Log(ctx, Event{
		Type:      EventTypeLLM,
		RequestID: requestID,
		Agent:     agent,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the request it serves.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
