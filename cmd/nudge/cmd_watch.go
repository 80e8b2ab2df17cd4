package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nudge/internal/collector"
	"nudge/internal/composer"
	"nudge/internal/config"
	"nudge/internal/embedding"
	"nudge/internal/entity"
	"nudge/internal/intent"
	"nudge/internal/llm"
	"nudge/internal/retrieval"
	"nudge/internal/store"
	"nudge/internal/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the full observation pipeline",
	Long: `Watches the spool directory for observation files, ingests them into
the context store, and runs them through the intent analyzer. Suggestions
that pass the gate, the cooldown and the remote classifier are printed to
stdout as JSON lines.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, engine, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor := entity.New()
	col := collector.New(cfg.Collector, st, engine, extractor)

	classifier := intent.NewClassifier(cfg.Classifier)
	cooldown := intent.NewCooldownPolicy(cfg.Cooldown.Enabled, cfg.Cooldown.DurationValue())
	analyzer := intent.NewAnalyzer(cfg.Gate, cooldown, classifier, printSuggestion)

	// Every ingested observation is mirrored into the analyzer so the gate
	// sees the same stream the store does.
	col.SetOnIngest(func(obs collector.Observation) {
		analyzer.HandleEvent(ctx, observationEvent(obs))
	})

	watcher, err := collector.NewSpoolWatcher(cfg.SpoolPath(), col)
	if err != nil {
		return fmt.Errorf("failed to create spool watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start spool watcher: %w", err)
	}

	logger.Info("watch pipeline started",
		zap.String("spool", cfg.SpoolPath()),
		zap.String("store", st.Path()),
		zap.Bool("embeddings", engine != nil))

	<-ctx.Done()

	if err := watcher.Stop(); err != nil {
		logger.Warn("spool watcher shutdown", zap.Error(err))
	}
	ingested, skipped := col.Counts()
	logger.Info("watch pipeline stopped",
		zap.Int64("ingested", ingested),
		zap.Int64("skipped_duplicates", skipped),
		zap.Int64("suggested", analyzer.Suggested()))
	return nil
}

// observationEvent maps a stored observation back to the event type the
// gate understands.
func observationEvent(obs collector.Observation) types.ObservedEvent {
	evType := types.EventOCRDiff
	switch obs.Source {
	case types.SourceNotification:
		evType = types.EventNotification
	case types.SourceUserAction:
		evType = types.EventTextEntered
	}
	return types.ObservedEvent{
		Type:      evType,
		App:       obs.Topic,
		Text:      obs.Content,
		Timestamp: obs.Timestamp,
	}
}

func printSuggestion(p types.NotificationPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		logger.Error("failed to encode suggestion", zap.Error(err))
		return
	}
	fmt.Println(string(data))
}

// openStore opens the context store and attaches the configured embedding
// engine, if any. Shared by every subcommand that touches the store.
func openStore(cfg *config.Config) (*store.ContextStore, embedding.Engine, error) {
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to init embedding engine: %w", err)
	}
	if engine != nil {
		st.SetEmbeddingEngine(engine)
	}
	return st, engine, nil
}

// newComposer wires the composer stack on top of an open store.
func newComposer(cfg *config.Config, st *store.ContextStore, engine embedding.Engine) *composer.Composer {
	retriever := retrieval.New(cfg.Retrieval, st, engine, entity.New())
	client := llm.NewOpenAIClient(cfg.LLM)
	return composer.New(cfg.Composer, client, retriever, composer.LogOnlyAutomation{})
}

// buildState is a minimal system state for one-shot CLI invocations.
func buildState(app string) types.SystemState {
	return types.SystemState{ActiveApp: app}
}
