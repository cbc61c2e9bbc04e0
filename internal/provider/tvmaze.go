package provider

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/knowledge-engine/movierec/internal/fetcher"
	"github.com/knowledge-engine/movierec/internal/search"
)

const defaultTVMazeBaseURL = "https://api.tvmaze.com"

// TVMazeProvider queries the keyless TVMaze API. Summaries arrive as HTML.
type TVMazeProvider struct {
	BaseURL string
	getter  JSONGetter
}

type tvmazeShow struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Language  string   `json:"language"`
	Genres    []string `json:"genres"`
	Premiered string   `json:"premiered"`
	Summary   string   `json:"summary"`
	Image     *struct {
		Medium   string `json:"medium"`
		Original string `json:"original"`
	} `json:"image"`
}

type tvmazeSearchResult struct {
	Score float64    `json:"score"`
	Show  tvmazeShow `json:"show"`
}

func NewTVMazeProvider(baseURL string, getter JSONGetter) *TVMazeProvider {
	if baseURL == "" {
		baseURL = defaultTVMazeBaseURL
	}
	return &TVMazeProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		getter:  getter,
	}
}

func (p *TVMazeProvider) Name() string {
	return "tvmaze"
}

func (p *TVMazeProvider) FindCandidates(ctx context.Context, title string) ([]Candidate, error) {
	var results []tvmazeSearchResult
	err := p.getter.GetJSON(ctx, p.BaseURL+"/search/shows?"+url.Values{"q": {title}}.Encode(), &results)
	if errors.Is(err, fetcher.ErrNotFound) {
		return []Candidate{}, nil
	}
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, Candidate{
			ExternalID: strconv.Itoa(r.Show.ID),
			Title:      r.Show.Name,
			ImageURL:   r.Show.imageURL(),
		})
	}
	return candidates, nil
}

func (p *TVMazeProvider) LookupSingle(ctx context.Context, title string) (*search.Item, error) {
	var show tvmazeShow
	err := p.getter.GetJSON(ctx, p.BaseURL+"/singlesearch/shows?"+url.Values{"q": {title}}.Encode(), &show)
	if errors.Is(err, fetcher.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if show.Name == "" {
		return nil, nil
	}

	return &search.Item{
		Title:     show.Name,
		Category:  "TVMaze",
		Tags:      strings.Join(show.Genres, ", "),
		Locale:    show.Language,
		Year:      yearOf(show.Premiered),
		Summary:   fetcher.TextFromHTML(show.Summary),
		PosterURL: show.imageURL(),
	}, nil
}

func (s tvmazeShow) imageURL() string {
	if s.Image == nil {
		return ""
	}
	if s.Image.Original != "" {
		return s.Image.Original
	}
	return s.Image.Medium
}
