// Package corpus memorizes the loaded item list and the TF-IDF matrix derived
// from it. Every change to the item list produces a new generation; a matrix is
// only reused for the generation it was built from.
package corpus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/metrics"
	"github.com/knowledge-engine/movierec/internal/search"
)

const (
	snapshotKey = "corpus"

	// DefaultTTL is how long a loaded corpus is served before reloading.
	DefaultTTL = time.Hour
)

// Source loads the full item list.
type Source interface {
	LoadCorpus(ctx context.Context) ([]search.Item, error)
}

// Snapshot is an immutable view of the corpus at one generation.
type Snapshot struct {
	Items      []search.Item
	Generation uint64
	LoadedAt   time.Time
}

// Stats describes the cache state.
type Stats struct {
	Items       int       `json:"items"`
	Generation  uint64    `json:"generation"`
	Rebuilds    int64     `json:"matrix_rebuilds"`
	MatrixReady bool      `json:"matrix_ready"`
	Fresh       bool      `json:"fresh"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Cache holds the current corpus snapshot and its matrix.
// Concurrent refreshes are last-writer-wins.
type Cache struct {
	source Source
	logger *logrus.Entry

	mu         sync.Mutex
	live       *expirable.LRU[string, *Snapshot]
	last       Snapshot
	generation uint64
	matrix     *search.Matrix

	rebuilds atomic.Int64
}

// New creates a cache over source. A non-positive ttl uses DefaultTTL.
func New(source Source, ttl time.Duration, logger *logrus.Entry) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.WithField("component", "corpus_cache")
	}
	return &Cache{
		source: source,
		logger: logger,
		live:   expirable.NewLRU[string, *Snapshot](1, nil, ttl),
	}
}

// Get returns the memorized snapshot, reloading from the source once the TTL has passed.
func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if snap, ok := c.live.Get(snapshotKey); ok {
		s := *snap
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	items, err := c.source.LoadCorpus(ctx)
	if err != nil {
		metrics.CorpusLoads.WithLabelValues("error").Inc()
		return Snapshot{}, fmt.Errorf("failed to load corpus: %w", err)
	}
	items = ensureUniqueIDs(items)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	snap := Snapshot{Items: items, Generation: c.generation, LoadedAt: time.Now()}
	c.live.Add(snapshotKey, &snap)
	c.last = snap
	c.matrix = nil

	metrics.CorpusLoads.WithLabelValues("ok").Inc()
	metrics.CorpusSize.Set(float64(len(items)))
	c.logger.WithFields(logrus.Fields{
		"items":      len(items),
		"generation": snap.Generation,
	}).Info("Corpus loaded")

	return snap, nil
}

// AppendAndInvalidate adds item to the corpus as a new generation and drops
// the cached matrix. The item gets a fresh ID when its own is unset or taken.
// When the current corpus already holds the title, nothing is appended and the
// current snapshot is returned with the existing row. The refresh timer is not reset.
func (c *Cache) AppendAndInvalidate(item search.Item) (Snapshot, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.last
	if idx := search.IndexOfExact(base.Items, item.Title); idx >= 0 {
		return base, idx
	}

	items := make([]search.Item, len(base.Items), len(base.Items)+1)
	copy(items, base.Items)
	item.ID = nextID(items, item.ID)
	items = append(items, item)

	c.generation++
	snap := Snapshot{Items: items, Generation: c.generation, LoadedAt: base.LoadedAt}
	if entry, ok := c.live.Peek(snapshotKey); ok {
		*entry = snap
	}
	c.last = snap
	c.matrix = nil

	metrics.CorpusAppends.Inc()
	metrics.CorpusSize.Set(float64(len(items)))
	c.logger.WithFields(logrus.Fields{
		"title":      item.Title,
		"items":      len(items),
		"generation": snap.Generation,
	}).Info("Item appended, matrix invalidated")

	return snap, len(items) - 1
}

// Matrix returns the TF-IDF matrix for snap, building it when the cached one
// belongs to another generation.
func (c *Cache) Matrix(snap Snapshot) (*search.Matrix, error) {
	c.mu.Lock()
	if c.matrix != nil && c.matrix.Generation == snap.Generation {
		m := c.matrix
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	start := time.Now()
	m, err := search.BuildMatrix(snap.Items, search.BuildVocabulary(snap.Items))
	if err != nil {
		return nil, err
	}
	m.Generation = snap.Generation
	elapsed := time.Since(start)

	c.rebuilds.Add(1)
	metrics.MatrixRebuilds.Inc()
	metrics.MatrixBuildDuration.Observe(elapsed.Seconds())

	c.mu.Lock()
	if snap.Generation == c.generation {
		c.matrix = m
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"rows":       len(m.Rows),
		"terms":      m.Vocabulary.Len(),
		"generation": snap.Generation,
		"elapsed":    elapsed,
	}).Debug("Matrix built")

	return m, nil
}

// Invalidate forces the next Get to reload from the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live.Remove(snapshotKey)
	c.matrix = nil
}

// Rebuilds returns how many matrices have been built.
func (c *Cache) Rebuilds() int64 {
	return c.rebuilds.Load()
}

// Stats returns a point-in-time description of the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, fresh := c.live.Peek(snapshotKey)
	return Stats{
		Items:       len(c.last.Items),
		Generation:  c.last.Generation,
		Rebuilds:    c.rebuilds.Load(),
		MatrixReady: c.matrix != nil && c.matrix.Generation == c.last.Generation,
		Fresh:       fresh,
		LoadedAt:    c.last.LoadedAt,
	}
}
