package admission

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc extracts the client identity from a request.
type KeyFunc func(r *http.Request) string

// ClientKey identifies the client by the host part of RemoteAddr.
// X-Forwarded-For is not trusted: any client can set it to dodge the
// limit. Behind a trusted proxy, have the proxy set RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimitBody struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetAt    string `json:"reset_at"`
	RetryAfter int    `json:"retry_after"`
}

type capacityBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// WriteQuotaHeaders sets the X-RateLimit-* headers for q.
func WriteQuotaHeaders(w http.ResponseWriter, q Quota) {
	if q.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt.Unix(), 10))
}

// WriteRejection answers a rejected request: 429 for the rate limit, 503
// for capacity. Both carry Retry-After.
func WriteRejection(w http.ResponseWriter, d Decision) {
	retry := int(RetrySeconds(d.RetryAfter) / time.Second)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	switch d.Outcome {
	case RejectedRate:
		q := d.Quota
		q.Remaining = 0
		WriteQuotaHeaders(w, q)
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(rateLimitBody{
			Error:      "too many requests",
			Limit:      q.Limit,
			Remaining:  0,
			ResetAt:    q.ResetAt.UTC().Format(time.RFC3339),
			RetryAfter: retry,
		})
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(capacityBody{
			Error:      "service unavailable",
			RetryAfter: retry,
		})
	}
}

// Middleware admits each request through c before calling next and holds
// the gate slot until next returns.
func Middleware(c *Controller, keyFunc KeyFunc, onReject func(Decision)) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, release := c.Admit(r.Context(), keyFunc(r))
			defer release()

			if !d.Admitted() {
				if onReject != nil {
					onReject(d)
				}
				WriteRejection(w, d)
				return
			}
			WriteQuotaHeaders(w, d.Quota)
			next.ServeHTTP(w, r)
		})
	}
}
