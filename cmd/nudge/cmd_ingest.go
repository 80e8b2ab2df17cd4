package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nudge/internal/collector"
	"nudge/internal/entity"
	"nudge/internal/types"
)

var (
	ingestSource string
	ingestTopic  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [text...]",
	Short: "Ingest one observation into the context store",
	Long: `Normalizes the given text (or stdin when no arguments are given) into
a context chunk and stores it. Entities are extracted and an embedding is
attached when a provider is configured.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", string(types.SourceUserAction), "observation source (ocr, notification, user-action, mail, slack, app)")
	ingestCmd.Flags().StringVar(&ingestTopic, "topic", "", "optional topic label")
}

func runIngest(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")
	if content == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("nothing to ingest")
	}

	st, engine, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	col := collector.New(cfg.Collector, st, engine, entity.New())
	if err := col.Ingest(context.Background(), collector.Observation{
		Source:  types.Source(ingestSource),
		Content: content,
		Topic:   ingestTopic,
	}); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	count, err := st.Count()
	if err != nil {
		return err
	}
	fmt.Printf("Stored. %d chunks total.\n", count)
	return nil
}
