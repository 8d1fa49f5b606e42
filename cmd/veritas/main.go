// Veritas answers natural-language questions from a SQL datastore and the
// web, returning every answer with a trace of the evidence behind it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Veritas: answers with receipts.",
	Long: `Veritas plans a question into retrieval steps, runs each step against a
SQL datastore or the web, and returns the answer with a provenance trail of
every query and search it relied on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "veritas.yaml", "config file (.yaml, .yml or .json)")
	rootCmd.AddCommand(serveCmd, askCmd, seedCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
