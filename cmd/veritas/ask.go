package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rahul/veritas/internal/agent"
	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/trace"
	"github.com/spf13/cobra"
)

var (
	askCharts  bool
	askJSON    bool
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print its provenance",
	Long: `Answer one question in-process and print the answer followed by the
provenance trail.

Examples:
  veritas ask "What is the median salary for nurses in Seattle?"
  veritas ask --json "How many physicians work in Boston?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askCharts, "charts", false, "mark the request as wanting chart-ready data")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "log pipeline events to stderr")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !askVerbose {
		cfg.Logging.Level = "error"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.orchestrator.Answer(ctx, agent.Query{
		Text:         strings.Join(args, " "),
		EnableCharts: askCharts,
	})
	if err != nil {
		return err
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(os.Stdout, resp)
	return nil
}

func printResponse(w io.Writer, resp *agent.Response) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	fmt.Fprintln(w, observability.Rule())

	width := observability.TermWidth() - 24
	for _, e := range resp.Provenance {
		fmt.Fprintf(w, "%2d  %-13s %s\n", e.Step, e.Agent, observability.Truncate(e.Action, width))
		switch e.Type {
		case trace.KindQuery:
			fmt.Fprintf(w, "    %s\n", observability.Truncate(e.Statement, width))
		case trace.KindSearch:
			for _, src := range e.Sources {
				fmt.Fprintf(w, "    %s\n", observability.Truncate(src.URL, width))
			}
		}
	}

	fmt.Fprintln(w, observability.Rule())
	fmt.Fprintf(w, "%.1fs  request %s\n", resp.Metadata.ExecutionTime, resp.Metadata.RequestID)
	if resp.Metadata.Degraded {
		fmt.Fprintf(w, "partial answer: %s\n", resp.Metadata.DegradedReason)
	}
}
