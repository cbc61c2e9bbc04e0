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

const (
	defaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	defaultTMDBImageURL = "https://image.tmdb.org/t/p/w500"
)

// tmdbGenres maps TMDB movie genre ids to names
var tmdbGenres = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

type TMDBProvider struct {
	BaseURL      string
	ImageBaseURL string
	APIKey       string
	getter       JSONGetter
}

type tmdbMovie struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	Overview         string `json:"overview"`
	ReleaseDate      string `json:"release_date"`
	GenreIDs         []int  `json:"genre_ids"`
	OriginalLanguage string `json:"original_language"`
	PosterPath       string `json:"poster_path"`
}

type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

func NewTMDBProvider(baseURL, imageBaseURL, apiKey string, getter JSONGetter) *TMDBProvider {
	if baseURL == "" {
		baseURL = defaultTMDBBaseURL
	}
	if imageBaseURL == "" {
		imageBaseURL = defaultTMDBImageURL
	}
	return &TMDBProvider{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ImageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		APIKey:       apiKey,
		getter:       getter,
	}
}

func (p *TMDBProvider) Name() string {
	return "tmdb"
}

func (p *TMDBProvider) FindCandidates(ctx context.Context, title string) ([]Candidate, error) {
	movies, err := p.search(ctx, title)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(movies))
	for _, m := range movies {
		candidates = append(candidates, Candidate{
			ExternalID: strconv.Itoa(m.ID),
			Title:      m.Title,
			ImageURL:   p.imageURL(m.PosterPath),
		})
	}
	return candidates, nil
}

func (p *TMDBProvider) LookupSingle(ctx context.Context, title string) (*search.Item, error) {
	movies, err := p.search(ctx, title)
	if err != nil {
		return nil, err
	}
	if len(movies) == 0 {
		return nil, nil
	}

	titles := make([]string, len(movies))
	for i, m := range movies {
		titles[i] = m.Title
	}
	m := movies[bestIndex(titles, title)]

	genres := make([]string, 0, len(m.GenreIDs))
	for _, id := range m.GenreIDs {
		if name, ok := tmdbGenres[id]; ok {
			genres = append(genres, name)
		}
	}

	return &search.Item{
		Title:     m.Title,
		Category:  "TMDB",
		Tags:      strings.Join(genres, ", "),
		Locale:    m.OriginalLanguage,
		Year:      yearOf(m.ReleaseDate),
		Summary:   m.Overview,
		PosterURL: p.imageURL(m.PosterPath),
	}, nil
}

func (p *TMDBProvider) search(ctx context.Context, title string) ([]tmdbMovie, error) {
	query := url.Values{}
	query.Set("query", title)
	query.Set("api_key", p.APIKey)

	var resp tmdbSearchResponse
	err := p.getter.GetJSON(ctx, p.BaseURL+"/search/movie?"+query.Encode(), &resp)
	if errors.Is(err, fetcher.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (p *TMDBProvider) imageURL(path string) string {
	if path == "" {
		return ""
	}
	return p.ImageBaseURL + "/" + strings.TrimLeft(path, "/")
}
