package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/knowledge-engine/movierec/internal/corpus"
	"github.com/knowledge-engine/movierec/internal/search"
)

// ItemLister returns persisted items; storage.FileStorage implements it
type ItemLister interface {
	List() ([]search.Item, error)
}

type discoveredSource struct {
	base  corpus.Source
	store ItemLister
}

// WithDiscovered wraps source so every load also returns the stored items
// whose titles the base corpus does not already contain. Stored items are
// appended after the base items.
func WithDiscovered(source corpus.Source, store ItemLister) corpus.Source {
	if store == nil {
		return source
	}
	return &discoveredSource{base: source, store: store}
}

func (d *discoveredSource) LoadCorpus(ctx context.Context) ([]search.Item, error) {
	items, err := d.base.LoadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := d.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list discovered items: %w", err)
	}

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[strings.ToLower(strings.TrimSpace(it.Title))] = true
	}
	for _, it := range stored {
		key := strings.ToLower(strings.TrimSpace(it.Title))
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		// IDs are assigned by the corpus cache
		it.ID = 0
		items = append(items, it)
	}

	return items, nil
}
