package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/corpus"
	"github.com/knowledge-engine/movierec/internal/metrics"
	"github.com/knowledge-engine/movierec/internal/politeness"
	"github.com/knowledge-engine/movierec/internal/search"
	"github.com/knowledge-engine/movierec/internal/storage"
)

const DefaultSuggestionCount = 5

var (
	// ErrNotFound is returned when a title cannot be resolved even after the external lookup
	ErrNotFound = errors.New("title not found")
	// ErrInternalInconsistency is returned when a resolved item has no matrix row
	ErrInternalInconsistency = errors.New("internal inconsistency between corpus and matrix")
)

// NotFoundError carries "did you mean" titles for an unresolved query
type NotFoundError struct {
	Title       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Title)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Lookup fetches a single item from an external catalogue; nil means absent
type Lookup interface {
	LookupSingle(ctx context.Context, title string) (*search.Item, error)
}

// Enricher fills display metadata without changing order or membership
type Enricher interface {
	Enrich(ctx context.Context, items []search.Item) []search.Item
}

// ItemStore persists items discovered through Lookup. Get returns
// storage.ErrNotFound for unknown titles.
type ItemStore interface {
	Save(item search.Item) error
	Get(title string) (*search.Item, error)
}

// BreakerReporter exposes the circuit breaker guarding catalogue calls
type BreakerReporter interface {
	BreakerState() string
}

// GateReporter exposes outbound politeness counters
type GateReporter interface {
	Statistics() politeness.Statistics
}

// Recommendation is the resolved query item and its ranked neighbors
type Recommendation struct {
	Item      search.Item       `json:"item"`
	Neighbors []search.Neighbor `json:"neighbors"`
}

// Status describes the engine for the status endpoint
type Status struct {
	Items       int       `json:"items"`
	Generation  uint64    `json:"generation"`
	Rebuilds    int64     `json:"matrix_rebuilds"`
	MatrixReady bool      `json:"matrix_ready"`
	Fresh       bool      `json:"fresh"`
	LoadedAt    time.Time `json:"loaded_at"`
	CacheAge    string    `json:"cache_age"`
	Lookup      bool      `json:"external_lookup"`
	Enrichment  bool      `json:"enrichment"`

	BreakerState string                 `json:"breaker_state,omitempty"`
	Politeness   *politeness.Statistics `json:"politeness,omitempty"`
}

// Engine orchestrates corpus loading, title resolution and ranking.
// Lookup, Enricher, Discovered, Breaker and Gate are optional.
type Engine struct {
	Logger          *logrus.Entry
	Corpus          *corpus.Cache
	Lookup          Lookup
	Enricher        Enricher
	Discovered      ItemStore
	Breaker         BreakerReporter
	Gate            GateReporter
	SuggestionCount int
}

func NewEngine(cache *corpus.Cache, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}
	return &Engine{
		Logger:          logger,
		Corpus:          cache,
		SuggestionCount: DefaultSuggestionCount,
	}
}

// Recommend returns up to topN items most similar to title. topN is clamped to [1, 50].
func (e *Engine) Recommend(ctx context.Context, title string, topN int) (rec *Recommendation, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveRecommend(outcome(err), time.Since(start))
	}()

	snap, err := e.Corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Items) == 0 {
		return nil, search.ErrEmptyCorpus
	}

	idx := search.IndexOf(snap.Items, title)
	if idx < 0 {
		snap, idx, err = e.lookupAndAppend(ctx, snap, title)
		if err != nil {
			return nil, err
		}
	}

	matrix, err := e.Corpus.Matrix(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to build matrix: %w", err)
	}
	if matrix.Row(idx) == nil || len(matrix.Rows) != len(snap.Items) {
		e.Logger.WithFields(logrus.Fields{
			"title":      title,
			"index":      idx,
			"rows":       len(matrix.Rows),
			"items":      len(snap.Items),
			"generation": snap.Generation,
		}).Error("Resolved item has no matrix row")
		return nil, ErrInternalInconsistency
	}

	rec = &Recommendation{
		Item:      snap.Items[idx],
		Neighbors: search.RankNeighbors(matrix, snap.Items, idx, search.ClampLimit(topN)),
	}
	e.enrich(ctx, rec)

	e.Logger.WithFields(logrus.Fields{
		"title":     rec.Item.Title,
		"neighbors": len(rec.Neighbors),
	}).Debug("Recommendation served")

	return rec, nil
}

// lookupAndAppend grows the corpus with title, taken from the discovered
// store when present there, otherwise from the external catalogue
func (e *Engine) lookupAndAppend(ctx context.Context, snap corpus.Snapshot, title string) (corpus.Snapshot, int, error) {
	notFound := func() error {
		return &NotFoundError{
			Title:       title,
			Suggestions: search.Suggest(snap.Items, title, e.suggestionCount()),
		}
	}

	if stored := e.storedItem(title); stored != nil {
		metrics.ExternalLookups.WithLabelValues("stored").Inc()
		snap, idx := e.Corpus.AppendAndInvalidate(*stored)
		return snap, idx, nil
	}

	if e.Lookup == nil {
		return snap, -1, notFound()
	}

	item, err := e.Lookup.LookupSingle(ctx, title)
	if err != nil {
		metrics.ExternalLookups.WithLabelValues("error").Inc()
		e.Logger.WithError(err).WithField("title", title).Warn("External lookup failed")
		return snap, -1, notFound()
	}
	if item == nil || item.Title == "" {
		metrics.ExternalLookups.WithLabelValues("missing").Inc()
		return snap, -1, notFound()
	}
	metrics.ExternalLookups.WithLabelValues("found").Inc()

	// The catalogue may answer with a title already in the corpus; the cache
	// checks again against the current corpus under its lock
	snap, idx := e.Corpus.AppendAndInvalidate(*item)

	if e.Discovered != nil {
		if err := e.Discovered.Save(snap.Items[idx]); err != nil {
			e.Logger.WithError(err).WithField("title", item.Title).Warn("Failed to persist discovered item")
		}
	}

	return snap, idx, nil
}

func (e *Engine) storedItem(title string) *search.Item {
	if e.Discovered == nil {
		return nil
	}
	item, err := e.Discovered.Get(title)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.Logger.WithError(err).WithField("title", title).Warn("Failed to read discovered item")
		}
		return nil
	}
	if item == nil || item.Title == "" {
		return nil
	}
	return item
}

func (e *Engine) enrich(ctx context.Context, rec *Recommendation) {
	if e.Enricher == nil {
		return
	}

	batch := make([]search.Item, 0, len(rec.Neighbors)+1)
	batch = append(batch, rec.Item)
	for _, n := range rec.Neighbors {
		batch = append(batch, n.Item)
	}

	enriched := e.Enricher.Enrich(ctx, batch)
	if len(enriched) != len(batch) {
		e.Logger.WithField("items", len(batch)).Warn("Enricher returned a different number of items, ignoring")
		return
	}

	rec.Item.PosterURL = enriched[0].PosterURL
	for i := range rec.Neighbors {
		rec.Neighbors[i].Item.PosterURL = enriched[i+1].PosterURL
	}
}

// SearchByCategory returns items whose category equals category, ignoring case
func (e *Engine) SearchByCategory(ctx context.Context, category string) ([]search.Item, error) {
	snap, err := e.Corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SearchRequests.WithLabelValues("category").Inc()
	return search.SearchByCategory(snap.Items, category), nil
}

// SearchByTag returns items whose tags contain tag, ignoring case
func (e *Engine) SearchByTag(ctx context.Context, tag string) ([]search.Item, error) {
	snap, err := e.Corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SearchRequests.WithLabelValues("tag").Inc()
	return search.SearchByTag(snap.Items, tag), nil
}

// KeywordSearch scores items by how many query words they contain
func (e *Engine) KeywordSearch(ctx context.Context, query string, categories []string, limit int) ([]search.Hit, error) {
	snap, err := e.Corpus.Get(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SearchRequests.WithLabelValues("keyword").Inc()
	return search.KeywordSearch(snap.Items, query, categories, limit), nil
}

func (e *Engine) Status() Status {
	stats := e.Corpus.Stats()
	status := Status{
		Items:       stats.Items,
		Generation:  stats.Generation,
		Rebuilds:    stats.Rebuilds,
		MatrixReady: stats.MatrixReady,
		Fresh:       stats.Fresh,
		LoadedAt:    stats.LoadedAt,
		Lookup:      e.Lookup != nil,
		Enrichment:  e.Enricher != nil,
	}
	if !stats.LoadedAt.IsZero() {
		status.CacheAge = time.Since(stats.LoadedAt).Round(time.Second).String()
	}
	if e.Breaker != nil {
		status.BreakerState = e.Breaker.BreakerState()
	}
	if e.Gate != nil {
		gate := e.Gate.Statistics()
		status.Politeness = &gate
	}
	return status
}

func (e *Engine) suggestionCount() int {
	if e.SuggestionCount <= 0 {
		return DefaultSuggestionCount
	}
	return e.SuggestionCount
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, search.ErrEmptyCorpus):
		return "empty_corpus"
	default:
		return "error"
	}
}
