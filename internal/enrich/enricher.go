// Package enrich fills display metadata (poster URLs) for items through a
// bounded pool of concurrent catalogue lookups. It never changes which items
// are returned or their order.
package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/metrics"
	"github.com/knowledge-engine/movierec/internal/provider"
	"github.com/knowledge-engine/movierec/internal/search"
)

const (
	DefaultWorkers       = 5
	DefaultLookupTimeout = 5 * time.Second
	DefaultCacheSize     = 2048
	DefaultCacheTTL      = 24 * time.Hour
)

// CandidateFinder searches an external catalogue by title
type CandidateFinder interface {
	FindCandidates(ctx context.Context, title string) ([]provider.Candidate, error)
}

type Config struct {
	Workers       int
	LookupTimeout time.Duration
	CacheSize     int
	CacheTTL      time.Duration
}

// Enricher looks up poster URLs with a fixed number of workers
type Enricher struct {
	finder CandidateFinder
	config Config
	logger *logrus.Entry

	// normalized title -> poster URL; "" records a lookup that found nothing
	posters *expirable.LRU[string, string]
}

func New(finder CandidateFinder, cfg Config, logger *logrus.Entry) *Enricher {
	if logger == nil {
		logger = logrus.WithField("component", "enricher")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Enricher{
		finder:  finder,
		config:  cfg,
		logger:  logger,
		posters: expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Enrich returns a copy of items with PosterURL filled where a lookup found one.
// Slot i of the result always holds input item i. Items that already carry a
// poster are not looked up. Failed lookups leave the field empty.
func (e *Enricher) Enrich(ctx context.Context, items []search.Item) []search.Item {
	out := make([]search.Item, len(items))
	copy(out, items)

	queue := make(chan int, len(out))
	for i := range out {
		if out[i].PosterURL == "" && strings.TrimSpace(out[i].Title) != "" {
			queue <- i
		}
	}
	close(queue)

	workers := e.config.Workers
	if pending := len(queue); pending < workers {
		workers = pending
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				out[i].PosterURL = e.poster(ctx, out[i].Title)
			}
		}()
	}
	wg.Wait()

	return out
}

// poster returns the poster URL for title, or "" when none could be found
func (e *Enricher) poster(ctx context.Context, title string) string {
	key := strings.ToLower(strings.TrimSpace(title))
	if url, ok := e.posters.Get(key); ok {
		metrics.EnrichmentLookups.WithLabelValues("cached").Inc()
		return url
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.LookupTimeout)
	defer cancel()

	candidates, err := e.finder.FindCandidates(lookupCtx, title)
	if err != nil {
		// Errors are not cached so the next request retries
		metrics.EnrichmentLookups.WithLabelValues("error").Inc()
		e.logger.WithError(err).WithField("title", title).Debug("Poster lookup failed")
		return ""
	}

	url := ""
	if best, ok := BestCandidate(candidates, title); ok {
		url = best.ImageURL
		metrics.EnrichmentLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.EnrichmentLookups.WithLabelValues("miss").Inc()
	}
	e.posters.Add(key, url)
	return url
}

// BestCandidate prefers an exact case-insensitive title match that has an
// image, then the first candidate with an image.
func BestCandidate(candidates []provider.Candidate, title string) (provider.Candidate, bool) {
	want := strings.ToLower(strings.TrimSpace(title))
	for _, c := range candidates {
		if c.ImageURL != "" && strings.ToLower(strings.TrimSpace(c.Title)) == want {
			return c, true
		}
	}
	for _, c := range candidates {
		if c.ImageURL != "" {
			return c, true
		}
	}
	return provider.Candidate{}, false
}
