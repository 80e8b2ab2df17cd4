package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var composeApp string

var composeCmd = &cobra.Command{
	Use:   "compose [intent...]",
	Short: "Compose a draft for an intent",
	Long: `Retrieves supporting context, asks the configured model for a draft,
runs it through the validation gate and prints the resulting payload. Drafts
marked non-actionable carry a missing-information reason instead of
fabricated content.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().StringVar(&composeApp, "app", "", "active app name to include in the prompt")
}

func runCompose(cmd *cobra.Command, args []string) error {
	intentText := strings.Join(args, " ")

	st, engine, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	comp := newComposer(cfg, st, engine)
	draft, err := comp.Compose(context.Background(), intentText, buildState(composeApp))
	if err != nil {
		return fmt.Errorf("composition failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(draft)
}
