package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/rahul/veritas/internal/admission"
	"github.com/rahul/veritas/internal/agent"
	"github.com/rahul/veritas/internal/governance"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/store"
	"github.com/rahul/veritas/internal/tools"
	"github.com/rahul/veritas/pkg/config"
	"github.com/spf13/cobra"
)

// loadConfig reads --config. A missing default file falls back to the
// built-in defaults; an explicitly named one must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// app is the wired pipeline shared by serve and ask.
type app struct {
	cfg          *config.Config
	logger       *observability.Logger
	metrics      *observability.Metrics
	status       *observability.Status
	store        *store.DataStore
	orchestrator *agent.Orchestrator
	closers      []io.Closer
}

func buildApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	base := observability.NewSlog(logOut, cfg.Logging.Level)
	a := &app{
		cfg:     cfg,
		logger:  observability.NewLogger(base, cfg.Logging.LLMLogPath),
		metrics: observability.NewMetrics(),
		status:  observability.NewStatus(),
	}

	ds, err := store.Open(store.Config{
		Driver:  cfg.Datastore.Driver,
		DSN:     cfg.Datastore.DSN,
		MaxRows: cfg.Datastore.MaxRows,
		Timeout: cfg.Datastore.Timeout(),
	}, base)
	if err != nil {
		return nil, err
	}
	a.store = ds
	a.closers = append(a.closers, ds)

	prompts := agent.NewPromptManager(cfg.Prompts.Dir)
	policy := governance.NewReadOnlyPolicyEngine()
	policy.AllowTools(string(agent.QueryAgent), "sql_query", "request_replan")
	policy.AllowTools(string(agent.SearchAgent), "web_search", "read_page", "request_replan")

	queryModel, queryID, err := agentModel(cfg, string(agent.QueryAgent))
	if err != nil {
		a.Close()
		return nil, err
	}
	searchModel, searchID, err := agentModel(cfg, string(agent.SearchAgent))
	if err != nil {
		a.Close()
		return nil, err
	}
	plannerModel, plannerID, err := agentModel(cfg, string(agent.Planner))
	if err != nil {
		a.Close()
		return nil, err
	}

	searcher, err := tools.NewDuckDuckGo(cfg.Search.MaxResults, cfg.Search.UserAgent)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init search: %w", err)
	}

	var fetcher tools.Fetcher
	switch cfg.Search.Fetcher {
	case "http":
		fetcher = tools.NewHTTPFetcher(cfg.Search.UserAgent)
	case "browser":
		bf := tools.NewBrowserFetcher()
		a.closers = append(a.closers, bf)
		fetcher = bf
	}

	common := agent.AgentConfig{
		Prompts:      prompts,
		Policy:       policy,
		MaxToolSteps: cfg.Executor.MaxToolSteps,
		Logger:       a.logger,
	}
	queryCfg, searchCfg := common, common
	queryCfg.Model, queryCfg.ModelID = queryModel, queryID
	searchCfg.Model, searchCfg.ModelID = searchModel, searchID

	agents := agent.NewRegistry(
		agent.NewQueryAgent(queryCfg, ds),
		agent.NewSearchAgent(searchCfg, searcher, fetcher),
	)

	a.orchestrator = &agent.Orchestrator{
		Executor: &agent.Executor{
			Planner: &agent.LLMPlanner{
				Model:                plannerModel,
				ModelID:              plannerID,
				Prompts:              prompts,
				Agents:               agents,
				PreserveStepOnReplan: cfg.Executor.PreserveStepOnReplan(),
				Logger:               a.logger,
				Metrics:              a.metrics,
			},
			Agents:      agents,
			MaxReplans:  cfg.Executor.MaxReplans,
			StepTimeout: cfg.Executor.StepTimeout(),
			Logger:      a.logger,
			Metrics:     a.metrics,
			Status:      a.status,
		},
		Formatter: agent.Formatter{Logger: a.logger, Metrics: a.metrics},
		Logger:    a.logger,
		Metrics:   a.metrics,
		Status:    a.status,
	}

	a.logger.Slog().InfoContext(ctx, "pipeline ready",
		slog.String("datastore", cfg.Datastore.Driver),
		slog.String("planner", plannerID),
		slog.String("query_agent", queryID),
		slog.String("search_agent", searchID),
		slog.String("fetcher", cfg.Search.Fetcher),
	)
	return a, nil
}

// newLimiter picks the per-client limiter: none when the limit is zero,
// Redis when a URL is configured, otherwise in-process.
func newLimiter(cfg config.AdmissionConfig, logger *observability.Logger) (admission.Limiter, error) {
	switch {
	case cfg.RequestsPerWindow == 0:
		return admission.NoopLimiter{}, nil
	case cfg.RedisURL != "":
		l, err := admission.NewRedisLimiter(cfg.RedisURL, cfg.RequestsPerWindow, cfg.Window())
		if err != nil {
			return nil, err
		}
		logger.Slog().Info("using redis rate limiter")
		return l, nil
	}
	return admission.NewMemoryLimiter(cfg.RequestsPerWindow, cfg.Window()), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Slog().Warn("close failed", slog.String("error", err.Error()))
		}
	}
}
