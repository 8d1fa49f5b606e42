package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/veritas/internal/admission"
	"github.com/rahul/veritas/internal/gateway"
	"github.com/rahul/veritas/internal/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and any enabled chat gateways",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.PrintBanner(os.Stdout, version)

	a, err := buildApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter, err := newLimiter(cfg.Admission, a.logger)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	controller := admission.NewController(limiter, admission.Config{
		MaxConcurrent:      cfg.Admission.MaxConcurrent,
		CapacityRetryAfter: cfg.Admission.CapacityRetryAfter(),
	}, a.logger, a.metrics)
	defer controller.Close()

	timeout := cfg.Executor.StepTimeout() * time.Duration(cfg.Executor.MaxReplans+3)
	api := &gateway.HTTPServer{
		Answerer:       a.orchestrator,
		Admission:      controller,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Status:         a.status,
		CORSOrigins:    cfg.App.CORSOrigins,
		RequestTimeout: timeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(ctx, cfg.App.ListenAddr)
	})

	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.orchestrator, controller, a.logger)
		if err != nil {
			return err
		}
		tg.Status = a.status
		tg.Timeout = timeout
		g.Go(func() error {
			defer tg.Stop()
			return tg.Start(ctx)
		})
	}

	hb := &observability.Heartbeat{
		Interval: 30 * time.Second,
		Status:   a.status,
		Logger:   a.logger,
	}
	if observability.IsTerminal() {
		hb.OnTick = func(snap observability.Snapshot) {
			fmt.Println(observability.StatusLine(snap))
		}
	}
	g.Go(func() error {
		hb.Start(ctx)
		return nil
	})

	err = g.Wait()
	log.Println("veritas stopped")
	return err
}
