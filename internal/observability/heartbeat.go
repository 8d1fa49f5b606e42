package observability

import (
	"context"
	"time"
)

// Heartbeat ticks every interval until ctx is done, marking the process as
// alive in status and the event log. onTick, when set, runs after each tick.
type Heartbeat struct {
	Interval time.Duration
	Status   *Status
	Logger   *Logger
	OnTick   func(Snapshot)
}

func (h *Heartbeat) Start(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Logger.Slog().Info("heartbeat started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	h.Status.Heartbeat()
	h.Logger.LogHeartbeat(ctx)
	if h.OnTick != nil && h.Status != nil {
		h.OnTick(h.Status.Snapshot())
	}
}
