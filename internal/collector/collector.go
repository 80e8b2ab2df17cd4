package collector

// =============================================================================
// CONTEXT COLLECTOR
// =============================================================================
// Normalizes raw observations into context chunks: trims and caps the text,
// extracts entities, attaches an embedding when a provider is configured,
// and writes the chunk to the store. The write path degrades gracefully:
// a failed embedding still produces a searchable chunk.

import (
	"context"
	"strings"
	"sync"
	"time"

	"nudge/internal/config"
	"nudge/internal/embedding"
	"nudge/internal/entity"
	"nudge/internal/logging"
	"nudge/internal/store"
	"nudge/internal/types"
)

// Observation is raw input handed to the collector by an OS tap or a spool
// file before normalization.
type Observation struct {
	Source    types.Source `json:"source"`
	Content   string       `json:"content"`
	Topic     string       `json:"topic,omitempty"`
	Timestamp time.Time    `json:"timestamp,omitempty"`
}

// Collector writes normalized observations into the context store.
type Collector struct {
	cfg       config.CollectorConfig
	store     *store.ContextStore
	engine    embedding.Engine // nil disables embedding at ingestion
	extractor *entity.Extractor

	mu          sync.Mutex
	lastContent map[types.Source]string
	ingested    int64
	skipped     int64

	// onIngest, when set, is invoked after each successful ingest. The watch
	// pipeline uses it to mirror observations into the intent analyzer.
	onIngest func(Observation)
}

// New creates a collector. engine may be nil.
func New(cfg config.CollectorConfig, st *store.ContextStore, engine embedding.Engine, extractor *entity.Extractor) *Collector {
	return &Collector{
		cfg:         cfg,
		store:       st,
		engine:      engine,
		extractor:   extractor,
		lastContent: make(map[types.Source]string),
	}
}

// SetOnIngest registers a callback fired after each successful ingest.
// Must be called before the collector starts receiving observations.
func (c *Collector) SetOnIngest(fn func(Observation)) {
	c.onIngest = fn
}

// Ingest normalizes one observation and persists it. Consecutive duplicates
// per source are suppressed: OCR diffing and notification relays both
// re-emit identical payloads under load.
func (c *Collector) Ingest(ctx context.Context, obs Observation) error {
	log := logging.Get(logging.CategoryIngest)

	content := strings.TrimSpace(obs.Content)
	if content == "" {
		return nil
	}
	if c.cfg.MaxContentLen > 0 && len(content) > c.cfg.MaxContentLen {
		content = content[:c.cfg.MaxContentLen]
	}

	c.mu.Lock()
	if c.lastContent[obs.Source] == content {
		c.skipped++
		c.mu.Unlock()
		log.Debug("skipping duplicate %s observation (%d chars)", obs.Source, len(content))
		return nil
	}
	c.lastContent[obs.Source] = content
	c.mu.Unlock()

	ts := obs.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	chunk := &types.Chunk{
		Source:    obs.Source,
		Content:   content,
		Topic:     strings.TrimSpace(obs.Topic),
		Entities:  c.extractor.Extract(content),
		Timestamp: ts,
	}

	if c.engine != nil {
		vec, err := c.engine.Embed(ctx, content)
		if err != nil {
			log.Warn("embedding failed for %s observation, storing without: %v", obs.Source, err)
		} else {
			chunk.Embedding = vec
		}
	}

	if err := c.store.Insert(ctx, chunk); err != nil {
		return err
	}

	c.mu.Lock()
	c.ingested++
	c.mu.Unlock()
	log.Debug("ingested %s chunk %s: %d chars, %d entities", chunk.Source, chunk.ID, len(content), len(chunk.Entities))

	if c.onIngest != nil {
		c.onIngest(Observation{Source: obs.Source, Content: content, Topic: chunk.Topic, Timestamp: ts})
	}
	return nil
}

// Counts returns how many observations were ingested and skipped as
// duplicates since start.
func (c *Collector) Counts() (ingested, skipped int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ingested, c.skipped
}
