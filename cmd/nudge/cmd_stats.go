package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show context store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("failed to collect stats: %w", err)
		}

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-20s %v\n", k, stats[k])
		}
		return nil
	},
}

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Backfill embeddings for chunks stored without one",
	Long: `Walks the store and computes embeddings for every chunk that was
ingested while no embedding provider was configured. Requires a configured
provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, engine, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if engine == nil {
			return fmt.Errorf("no embedding provider configured")
		}

		n, err := st.ReembedAll(context.Background())
		if err != nil {
			return fmt.Errorf("reembed failed: %w", err)
		}
		fmt.Printf("Embedded %d chunks.\n", n)
		return nil
	},
}
