package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nudge/internal/logging"
)

// spoolRetryDelay is how long ingestFile waits before re-reading a file that
// did not parse, covering writers whose Create event fires mid-write.
const spoolRetryDelay = 100 * time.Millisecond

// SpoolWatcher ingests observation files dropped into a spool directory by
// an external OS tap. Each file holds one JSON-encoded Observation; the file
// is deleted after a successful ingest so the spool stays bounded.
type SpoolWatcher struct {
	dir       string
	collector *Collector
	fsWatcher *fsnotify.Watcher

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpoolWatcher creates a watcher over dir, creating it if missing.
func NewSpoolWatcher(dir string, collector *Collector) (*SpoolWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SpoolWatcher{
		dir:       dir,
		collector: collector,
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}, nil
}

// Start drains any files already spooled, then watches for new ones.
func (w *SpoolWatcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return err
	}
	w.drainExisting(ctx)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *SpoolWatcher) Stop() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *SpoolWatcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Get(logging.CategoryIngest).Warn("spool scan failed: %v", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.ingestFile(ctx, filepath.Join(w.dir, name))
	}
}

func (w *SpoolWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// A rename into the spool dir shows up as Create; writers that
			// stream into place also produce Write for the final flush.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ingestFile(ctx, event.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryIngest).Warn("spool watcher error: %v", err)
		}
	}
}

// ingestFile parses one spool file and hands it to the collector. A file
// that does not parse gets one re-read after a short delay, because the
// Create event can fire before a non-atomic writer finishes; files still
// malformed after the retry are renamed aside rather than deleted so they
// can be inspected.
func (w *SpoolWatcher) ingestFile(ctx context.Context, path string) {
	log := logging.Get(logging.CategoryIngest)
	if !strings.HasSuffix(path, ".json") {
		return
	}

	obs, err := readObservation(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		select {
		case <-time.After(spoolRetryDelay):
		case <-ctx.Done():
			return
		}
		obs, err = readObservation(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Warn("malformed spool file %s: %v", path, err)
		if renameErr := os.Rename(path, path+".bad"); renameErr != nil {
			log.Warn("failed to set aside %s: %v", path, renameErr)
		}
		return
	}

	if err := w.collector.Ingest(ctx, obs); err != nil {
		log.Error("failed to ingest spool file %s: %v", path, err)
		return
	}
	if err := os.Remove(path); err != nil {
		log.Warn("failed to remove spool file %s: %v", path, err)
	}
}

// readObservation reads and decodes one spool file. An empty file counts as
// a decode failure so an in-flight write gets the retry path.
func readObservation(path string) (Observation, error) {
	var obs Observation
	data, err := os.ReadFile(path)
	if err != nil {
		return obs, err
	}
	if len(data) == 0 {
		return obs, fmt.Errorf("empty file")
	}
	if err := json.Unmarshal(data, &obs); err != nil {
		return obs, err
	}
	return obs, nil
}
