package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter with a sliding window per key: a request
// is admitted when fewer than limit admissions happened in the period that
// ends now. Rejected requests are not counted.
//
// A background goroutine evicts idle keys every minute to bound memory.
// Call Close to stop it.
type MemoryLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu   sync.Mutex
	logs map[string][]time.Time // admission times, oldest first

	stopOnce sync.Once
	done     chan struct{}
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		limit:  limit,
		period: period,
		now:    time.Now,
		logs:   make(map[string][]time.Time),
		done:   make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	log := m.prune(key, now)

	q := Quota{Limit: m.limit, ResetAt: now.Add(m.period)}
	if len(log) >= m.limit {
		q.ResetAt = log[0].Add(m.period)
		return q, nil
	}
	log = append(log, now)
	m.logs[key] = log
	q.Allowed = true
	q.Remaining = m.limit - len(log)
	q.ResetAt = log[0].Add(m.period)
	return q, nil
}

// prune drops admissions that left the window ending at now.
func (m *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	log := m.logs[key]
	cutoff := now.Add(-m.period)
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == len(log) {
		delete(m.logs, key)
		return nil
	}
	if i > 0 {
		log = append([]time.Time(nil), log[i:]...)
		m.logs[key] = log
	}
	return log
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// cleanup periodically evicts keys with no admission left in the window.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryLimiter) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key := range m.logs {
		m.prune(key, now)
	}
}

func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}
