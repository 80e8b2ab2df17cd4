package retrieval

// =============================================================================
// CONTEXT RETRIEVER
// =============================================================================
// Fuses semantic, lexical, entity and recency signals over the context store
// into one ranked candidate list. The retriever owns no persistent state; it
// is a pure function of (intent string, store snapshot) -> ranked chunks.

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"nudge/internal/config"
	"nudge/internal/embedding"
	"nudge/internal/entity"
	"nudge/internal/logging"
	"nudge/internal/types"
)

// ChunkSource is the read surface the retriever needs from the store.
type ChunkSource interface {
	Recent(source types.Source, limit int) ([]types.Chunk, error)
	SearchText(query string, limit int) ([]types.Chunk, error)
	SearchSimilar(ctx context.Context, query []float32, topK int) ([]types.Chunk, error)
	GetByEntity(entityType types.EntityType, value string) ([]types.Chunk, error)
}

// Retriever ranks context chunks against a free-text intent.
type Retriever struct {
	cfg       config.RetrievalConfig
	source    ChunkSource
	engine    embedding.Engine // nil when no provider is configured
	extractor *entity.Extractor
}

// New creates a retriever. engine may be nil; semantic search then
// contributes nothing and the other signals carry the ranking.
func New(cfg config.RetrievalConfig, source ChunkSource, engine embedding.Engine, extractor *entity.Extractor) *Retriever {
	return &Retriever{
		cfg:       cfg,
		source:    source,
		engine:    engine,
		extractor: extractor,
	}
}

// candidate pairs a chunk with how it was discovered. Entity-search hits are
// tagged because they are the highest-precision signal and earn a boost.
type candidate struct {
	chunk        types.Chunk
	entitySearch bool
}

// Retrieve returns the top-ranked chunks for the intent, descending by score.
// It never returns an error: any failing sub-search contributes an empty
// candidate set and the pipeline continues with whatever else succeeded.
func (r *Retriever) Retrieve(ctx context.Context, intent string) []types.Chunk {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()
	log := logging.Get(logging.CategoryRetrieval)

	intentEntities := r.extractor.Extract(intent)

	// Sub-searches run in parallel; each writes its own slot so the merge
	// order (and therefore first-occurrence dedup) is deterministic.
	var (
		semantic []candidate
		lexical  []candidate
		byEntity []candidate
		biased   []candidate
		recent   []candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semantic = r.semanticCandidates(gctx, intent)
		return nil
	})
	g.Go(func() error {
		lexical = r.lexicalCandidates(intent)
		return nil
	})
	g.Go(func() error {
		byEntity = r.entityCandidates(intentEntities)
		return nil
	})
	g.Go(func() error {
		biased = r.sourceBiasedCandidates(intent)
		return nil
	})
	g.Go(func() error {
		recent = r.recencyCandidates()
		return nil
	})
	g.Wait() // sub-searches never return errors, they log and degrade

	merged := dedupe(semantic, lexical, byEntity, biased, recent)
	log.Debug("candidates: semantic=%d lexical=%d entity=%d biased=%d recent=%d merged=%d",
		len(semantic), len(lexical), len(byEntity), len(biased), len(recent), len(merged))

	scored := r.scoreAll(intent, intentEntities, merged)

	limit := r.cfg.MaxResults
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]types.Chunk, len(scored))
	for i, sc := range scored {
		out[i] = sc.chunk
	}
	log.Info("retrieved %d chunks for intent %q", len(out), truncate(intent, 80))
	return out
}

func (r *Retriever) semanticCandidates(ctx context.Context, intent string) []candidate {
	if r.engine == nil {
		return nil
	}
	log := logging.Get(logging.CategoryRetrieval)
	vec, err := r.engine.Embed(ctx, intent)
	if err != nil {
		log.Warn("semantic search skipped, embed failed: %v", err)
		return nil
	}
	chunks, err := r.source.SearchSimilar(ctx, vec, r.cfg.SemanticTopK)
	if err != nil {
		log.Warn("semantic search failed: %v", err)
		return nil
	}
	return asCandidates(chunks, false)
}

func (r *Retriever) lexicalCandidates(intent string) []candidate {
	terms := contentTerms(intent, r.cfg.LexicalTerms)
	var out []candidate
	for _, term := range terms {
		chunks, err := r.source.SearchText(term, r.cfg.LexicalPerTerm)
		if err != nil {
			logging.Get(logging.CategoryRetrieval).Warn("lexical search for %q failed: %v", term, err)
			continue
		}
		out = append(out, asCandidates(chunks, false)...)
	}
	return out
}

func (r *Retriever) entityCandidates(entities []types.Entity) []candidate {
	log := logging.Get(logging.CategoryRetrieval)
	var out []candidate
	for _, ent := range entities {
		chunks, err := r.source.GetByEntity(ent.Type, ent.Value)
		if err != nil {
			log.Warn("entity search for %s %q failed: %v", ent.Type, ent.Value, err)
		} else {
			out = append(out, asCandidates(chunks, true)...)
		}
		// Multi-word values get a second pass on the leading token so a
		// first name alone still finds "Kamil Nowak".
		if lead := ent.LeadingToken(); lead != "" && lead != ent.Value {
			chunks, err := r.source.GetByEntity(ent.Type, lead)
			if err != nil {
				log.Warn("entity search for %s %q failed: %v", ent.Type, lead, err)
				continue
			}
			out = append(out, asCandidates(chunks, true)...)
		}
	}
	return out
}

// sourceBiasedCandidates pulls recent chunks from a source the intent itself
// names ("send an email ..." favors mail, "reply on slack" favors slack).
func (r *Retriever) sourceBiasedCandidates(intent string) []candidate {
	lower := strings.ToLower(intent)
	var out []candidate
	for source, keywords := range sourceKeywords {
		if !containsAny(lower, keywords) {
			continue
		}
		chunks, err := r.source.Recent(source, r.cfg.SourceRecencyCap)
		if err != nil {
			logging.Get(logging.CategoryRetrieval).Warn("recency search for %s failed: %v", source, err)
			continue
		}
		out = append(out, asCandidates(chunks, false)...)
	}
	return out
}

// recencyCandidates is the unconditional sample that guarantees non-empty
// results when every targeted signal comes back empty.
func (r *Retriever) recencyCandidates() []candidate {
	chunks, err := r.source.Recent("", r.cfg.RecencySampleCap)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("recency sample failed: %v", err)
		return nil
	}
	return asCandidates(chunks, false)
}

var sourceKeywords = map[types.Source][]string{
	types.SourceMail:  {"email", "mail", "inbox", "reply"},
	types.SourceSlack: {"slack", "chat", "message", "dm"},
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func asCandidates(chunks []types.Chunk, entitySearch bool) []candidate {
	out := make([]candidate, len(chunks))
	for i, c := range chunks {
		out[i] = candidate{chunk: c, entitySearch: entitySearch}
	}
	return out
}

// dedupe merges candidate groups preserving first occurrence per id. The
// entity-search tag is sticky: once any occurrence carries it, the merged
// candidate keeps it.
func dedupe(groups ...[]candidate) []candidate {
	seen := make(map[string]int)
	var out []candidate
	for _, group := range groups {
		for _, c := range group {
			if idx, ok := seen[c.chunk.ID]; ok {
				if c.entitySearch {
					out[idx].entitySearch = true
				}
				continue
			}
			seen[c.chunk.ID] = len(out)
			out = append(out, c)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
