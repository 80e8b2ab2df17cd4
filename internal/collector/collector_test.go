package collector

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"nudge/internal/config"
	"nudge/internal/entity"
	"nudge/internal/store"
	"nudge/internal/types"
)

func newTestCollector(t *testing.T) (*Collector, *store.ContextStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(config.DefaultConfig().Collector, st, nil, entity.New()), st
}

func TestIngestStoresChunkWithEntities(t *testing.T) {
	c, st := newTestCollector(t)

	err := c.Ingest(context.Background(), Observation{
		Source:  types.SourceNotification,
		Content: "Kamil: let's sync on the launch project tomorrow",
		Topic:   "Slack",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	chunks, err := st.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("stored %d chunks, want 1", len(chunks))
	}
	chunk := chunks[0]
	if chunk.Source != types.SourceNotification || chunk.Topic != "Slack" {
		t.Errorf("chunk metadata wrong: %+v", chunk)
	}
	if len(chunk.Entities) == 0 {
		t.Error("entities not extracted at ingestion")
	}
	if chunk.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
}

func TestIngestSuppressesConsecutiveDuplicates(t *testing.T) {
	c, st := newTestCollector(t)
	ctx := context.Background()

	obs := Observation{Source: types.SourceOCR, Content: "same screen text"}
	for i := 0; i < 3; i++ {
		if err := c.Ingest(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}
	// A different source with the same content is not a duplicate.
	if err := c.Ingest(ctx, Observation{Source: types.SourceMail, Content: "same screen text"}); err != nil {
		t.Fatal(err)
	}

	n, err := st.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2 (one per source)", n)
	}

	ingested, skipped := c.Counts()
	if ingested != 2 || skipped != 2 {
		t.Errorf("Counts = (%d, %d), want (2, 2)", ingested, skipped)
	}
}

func TestIngestSkipsEmptyContent(t *testing.T) {
	c, st := newTestCollector(t)

	if err := c.Ingest(context.Background(), Observation{Source: types.SourceOCR, Content: "  \n "}); err != nil {
		t.Fatal(err)
	}
	n, _ := st.Count()
	if n != 0 {
		t.Errorf("empty observation stored, Count = %d", n)
	}
}

func TestIngestCapsContentLength(t *testing.T) {
	cfg := config.DefaultConfig().Collector
	cfg.MaxContentLen = 20
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	c := New(cfg, st, nil, entity.New())

	long := strings.Repeat("word ", 50)
	if err := c.Ingest(context.Background(), Observation{Source: types.SourceOCR, Content: long}); err != nil {
		t.Fatal(err)
	}

	chunks, _ := st.Recent("", 1)
	if len(chunks) != 1 || len(chunks[0].Content) > 20 {
		t.Errorf("content not capped: %d chars", len(chunks[0].Content))
	}
}

func TestIngestCallback(t *testing.T) {
	c, _ := newTestCollector(t)

	var got []Observation
	c.SetOnIngest(func(obs Observation) { got = append(got, obs) })

	ctx := context.Background()
	c.Ingest(ctx, Observation{Source: types.SourceOCR, Content: "first text"})
	c.Ingest(ctx, Observation{Source: types.SourceOCR, Content: "first text"}) // duplicate

	if len(got) != 1 {
		t.Fatalf("callback fired %d times, want 1 (duplicates excluded)", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("callback observation missing normalized timestamp")
	}
}
