package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/knowledge-engine/movierec/internal/config"
	"github.com/knowledge-engine/movierec/internal/search"
)

// Candidate is one match returned by a catalogue search
type Candidate struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	ImageURL   string `json:"image_url,omitempty"`
}

// CatalogProvider defines the interface for an external movie catalogue
type CatalogProvider interface {
	Name() string
	// FindCandidates returns every catalogue entry matching title, best first
	FindCandidates(ctx context.Context, title string) ([]Candidate, error)
	// LookupSingle returns the best matching entry as an Item, or nil when there is none
	LookupSingle(ctx context.Context, title string) (*search.Item, error)
}

// JSONGetter fetches a URL and decodes its JSON body; fetcher.Fetcher implements it
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// New builds the provider named in cfg. It returns nil for "none" or an empty name.
func New(cfg config.ProviderConfig, getter JSONGetter) (CatalogProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "none":
		return nil, nil
	case "tmdb":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("tmdb provider requires an API key")
		}
		return NewTMDBProvider(cfg.BaseURL, cfg.ImageBaseURL, cfg.APIKey, getter), nil
	case "tvmaze":
		return NewTVMazeProvider(cfg.BaseURL, getter), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// bestIndex picks the candidate whose title equals want ignoring case, else 0
func bestIndex(titles []string, want string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	for i, t := range titles {
		if strings.ToLower(strings.TrimSpace(t)) == want {
			return i
		}
	}
	return 0
}

// yearOf parses the leading YYYY of a date such as 2010-07-16
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}
