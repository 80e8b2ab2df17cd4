package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nudge/internal/entity"
	"nudge/internal/retrieval"
)

var queryShowContext bool

var queryCmd = &cobra.Command{
	Use:   "query [intent...]",
	Short: "Rank stored context against an intent",
	Long: `Runs the multi-signal retriever against the context store and prints
the ranked chunks. With --context, prints the serialized prompt block the
composer would embed instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryShowContext, "context", false, "print the serialized prompt context block")
}

func runQuery(cmd *cobra.Command, args []string) error {
	intentText := strings.Join(args, " ")

	st, engine, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	retriever := retrieval.New(cfg.Retrieval, st, engine, entity.New())
	chunks := retriever.Retrieve(context.Background(), intentText)

	if queryShowContext {
		fmt.Println(retrieval.BuildContextString(chunks))
		return nil
	}

	if len(chunks) == 0 {
		fmt.Println("No matching context.")
		return nil
	}
	now := time.Now()
	for i, c := range chunks {
		fmt.Printf("%2d. [%s] %s (%s ago)\n", i+1, c.Source, firstLine(c.Content, 100), c.Age(now).Round(time.Minute))
		if len(c.Entities) > 0 {
			names := make([]string, len(c.Entities))
			for j, e := range c.Entities {
				names[j] = fmt.Sprintf("%s:%s", e.Type, e.Value)
			}
			fmt.Printf("    entities: %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
