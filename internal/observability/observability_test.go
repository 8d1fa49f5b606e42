package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerEmitsTypedEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewSlog(&buf, "debug"), "")

	l.LogStep(context.Background(), "req-1", 2, "query_agent", "ok", 150*time.Millisecond)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "event", line["msg"])
	assert.Equal(t, "step", line["type"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "query_agent", line["agent"])
	data := line["data"].(map[string]any)
	assert.Equal(t, float64(2), data["step"])
	assert.Equal(t, float64(150), data["duration_ms"])
}

func TestLoggerWritesLLMFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "llm.jsonl")
	l := NewLogger(NewSlog(&bytes.Buffer{}, "info"), path)

	l.LogLLM(context.Background(), "req-1", "planner", "prompt text", "response text", nil)
	l.LogLLM(context.Background(), "req-2", "planner", "prompt text", "response text", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &evt))
	assert.Equal(t, EventTypeLLM, evt.Type)
	assert.Equal(t, "req-1", evt.RequestID)
}

func TestLoggerRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.jsonl")
	l := NewLogger(nil, path)
	l.maxSize = 10

	l.LogLLM(context.Background(), "a", "planner", "p", "r", nil)
	l.LogLLM(context.Background(), "b", "planner", "p", "r", nil)

	_, err := os.Stat(path + ".old")
	assert.NoError(t, err)
}

func TestNilLoggerAndMetricsAreSafe(t *testing.T) {
	var l *Logger
	l.LogHeartbeat(context.Background())
	assert.NotNil(t, l.Slog())

	var m *Metrics
	m.RecordAdmission("admitted")
	m.RecordAgent("planner", "ok", time.Second)
	m.IncInflight()
	m.DecInflight()
	m.RecordReplan()
	m.RecordTraceDecodeFailure()
	m.RecordRequest("ok")
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()
	m.RecordAdmission("rejected_rate")
	m.RecordAdmission("rejected_rate")
	m.RecordReplan()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				got[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), got["veritas_admission_decisions_total"])
	assert.Equal(t, float64(1), got["veritas_replans_total"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestStatusCounters(t *testing.T) {
	s := NewStatus()
	s.Begin("median salary")
	s.SetPhase(PhaseRouting)
	s.Reject()

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Inflight)
	assert.Equal(t, PhaseRouting, snap.LastPhase)
	assert.Equal(t, int64(1), snap.Rejected)

	s.End()
	snap = s.Snapshot()
	assert.Equal(t, 0, snap.Inflight)
	assert.Equal(t, int64(1), snap.Served)
	assert.Equal(t, PhaseIdle, snap.LastPhase)
	assert.Contains(t, StatusLine(snap), "served=1")
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdef...", Truncate("abcdefghijklmnop", 9))
}

func TestHeartbeatTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan Snapshot, 10)
	h := &Heartbeat{
		Interval: 5 * time.Millisecond,
		Status:   NewStatus(),
		OnTick: func(s Snapshot) {
			select {
			case ticks <- s:
			default:
			}
		},
	}

	done := make(chan struct{})
	go func() {
		h.Start(ctx)
		close(done)
	}()

	select {
	case snap := <-ticks:
		assert.False(t, snap.LastHeartbeat.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
}
