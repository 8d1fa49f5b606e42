package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/veritas/internal/admission"
	"github.com/rahul/veritas/internal/agent"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnswerer struct {
	mu      sync.Mutex
	queries []agent.Query
	fn      func(ctx context.Context, q agent.Query) (*agent.Response, error)
}

func (s *stubAnswerer) Answer(ctx context.Context, q agent.Query) (*agent.Response, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, q)
	}
	return &agent.Response{
		Answer: "The median is $88,000.",
		Provenance: []agent.ProvenanceEntry{{
			Step:       1,
			Agent:      "query_agent",
			Action:     "Executed query returning 3 rows",
			Type:       trace.KindQuery,
			QueryTrace: &trace.QueryTrace{Statement: "SELECT salary FROM employees", RowCount: 3},
		}},
		Metadata: agent.Metadata{ModelsUsed: map[string]string{"planner": "m"}, RequestID: "req-1"},
	}, nil
}

func post(t *testing.T, h http.Handler, body, addr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if addr != "" {
		req.RemoteAddr = addr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	ans := &stubAnswerer{}
	s := &HTTPServer{Answerer: ans}

	rec := post(t, s.Handler(), `{"query":"median salary for nurses in Seattle","enable_charts":true}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.Len(t, ans.queries, 1)
	assert.Equal(t, agent.Query{Text: "median salary for nurses in Seattle", EnableCharts: true}, ans.queries[0])

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "The median is $88,000.", body["answer"])
	prov := body["provenance"].([]any)
	require.Len(t, prov, 1)
	assert.Equal(t, float64(3), prov[0].(map[string]any)["row_count"])
}

func TestQueryEndpointErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{agent.ErrEmptyQuery, http.StatusBadRequest},
		{&agent.PlanningError{Reason: "no JSON object"}, http.StatusBadGateway},
		{&agent.RoutingError{Agent: agent.SearchAgent, Step: 2}, http.StatusInternalServerError},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
	}
	for _, tc := range cases {
		s := &HTTPServer{Answerer: &stubAnswerer{fn: func(context.Context, agent.Query) (*agent.Response, error) {
			return nil, tc.err
		}}}
		rec := post(t, s.Handler(), `{"query":"q"}`, "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.err.Error(), body.Error)
	}
}

func TestQueryEndpointRejectsBadBody(t *testing.T) {
	ans := &stubAnswerer{}
	s := &HTTPServer{Answerer: ans}

	rec := post(t, s.Handler(), `{"query":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ans.queries)

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQueryEndpointAppliesTimeout(t *testing.T) {
	s := &HTTPServer{
		RequestTimeout: 10 * time.Millisecond,
		Answerer: &stubAnswerer{fn: func(ctx context.Context, _ agent.Query) (*agent.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}
	rec := post(t, s.Handler(), `{"query":"q"}`, "")
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestQueryEndpointRateLimit(t *testing.T) {
	limiter := admission.NewMemoryLimiter(2, time.Minute)
	defer limiter.Close()
	status := observability.NewStatus()
	s := &HTTPServer{
		Answerer:  &stubAnswerer{},
		Admission: admission.NewController(limiter, admission.Config{MaxConcurrent: 4}, nil, nil),
		Status:    status,
	}
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec := post(t, h, `{"query":"q"}`, "10.1.1.1:4000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := post(t, h, `{"query":"q"}`, "10.1.1.1:4001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, post(t, h, `{"query":"q"}`, "10.1.1.2:4000").Code)
	assert.Equal(t, int64(1), status.Snapshot().Rejected)
}

func TestQueryEndpointCapacity(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	s := &HTTPServer{
		Answerer: &stubAnswerer{fn: func(context.Context, agent.Query) (*agent.Response, error) {
			close(entered)
			<-unblock
			return &agent.Response{Provenance: []agent.ProvenanceEntry{}}, nil
		}},
		Admission: admission.NewController(nil, admission.Config{MaxConcurrent: 1}, nil, nil),
	}
	h := s.Handler()

	done := make(chan int)
	go func() { done <- post(t, h, `{"query":"slow"}`, "10.0.0.1:1").Code }()
	<-entered

	rec := post(t, h, `{"query":"q"}`, "10.0.0.2:1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	close(unblock)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestStatusHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.RecordRequest("ok")
	s := &HTTPServer{Answerer: &stubAnswerer{}, Metrics: metrics, Status: observability.NewStatus()}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snap))
	res.Body.Close()
	assert.Contains(t, snap, "served")

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(data), `veritas_requests_total{status="ok"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := &HTTPServer{Answerer: &stubAnswerer{}, CORSOrigins: []string{"https://app.example.com"}}
	req := httptest.NewRequest(http.MethodOptions, "/v1/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &HTTPServer{Answerer: &stubAnswerer{}}
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestTelegramHandle(t *testing.T) {
	limiter := admission.NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()
	ans := &stubAnswerer{}
	tg := &TelegramGateway{
		Answerer:  ans,
		Admission: admission.NewController(limiter, admission.Config{}, nil, nil),
	}

	reply := tg.handle(context.Background(), 42, "median nurse salary?")
	assert.Equal(t, "The median is $88,000.\n\nSources:\n1. Executed query returning 3 rows", reply)
	assert.Equal(t, "median nurse salary?", ans.queries[0].Text)

	reply = tg.handle(context.Background(), 42, "again")
	assert.Contains(t, reply, "asking too fast")
	assert.Len(t, ans.queries, 1)

	// another chat has its own quota
	reply = tg.handle(context.Background(), 43, "hi")
	assert.Contains(t, reply, "$88,000")
}

func TestTelegramHandleFailure(t *testing.T) {
	tg := &TelegramGateway{Answerer: &stubAnswerer{fn: func(context.Context, agent.Query) (*agent.Response, error) {
		return nil, &agent.PlanningError{Reason: "bad"}
	}}}
	assert.Contains(t, tg.handle(context.Background(), 1, "q"), "couldn't work out a plan")
}

func TestRenderReply(t *testing.T) {
	reply := renderReply(&agent.Response{
		Answer: "About $90k.",
		Provenance: []agent.ProvenanceEntry{
			{Step: 1, Agent: "planner", Type: trace.KindPlan, PlanTrace: &trace.PlanTrace{StepCount: 1}},
			{Step: 2, Agent: "search_agent", Type: trace.KindSearch, SearchTrace: &trace.SearchTrace{
				Sources: []trace.Source{{URL: "https://a.example"}, {URL: "https://b.example"}},
			}},
		},
		Metadata: agent.Metadata{Degraded: true, DegradedReason: "replan limit reached"},
	})
	assert.Equal(t, "About $90k.\n\nSources:\n2. https://a.example\n2. https://b.example\n\n(partial answer: replan limit reached)", reply)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
}
