package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rahul/veritas/internal/observability"
	"github.com/rahul/veritas/internal/store"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create and fill the demo employees table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ds, err := store.Open(store.Config{
			Driver:  cfg.Datastore.Driver,
			DSN:     cfg.Datastore.DSN,
			MaxRows: cfg.Datastore.MaxRows,
			Timeout: cfg.Datastore.Timeout(),
		}, observability.NewSlog(os.Stderr, cfg.Logging.Level))
		if err != nil {
			return err
		}
		defer ds.Close()

		n, err := ds.Seed(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d rows into %s\n", n, cfg.Datastore.DSN)
		return nil
	},
}
