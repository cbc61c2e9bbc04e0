package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Item is one recommendable movie.
type Item struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Tags      string `json:"tags"`
	Locale    string `json:"locale"`
	Year      int    `json:"year"`
	Summary   string `json:"summary"`
	PosterURL string `json:"poster_url,omitempty"`
}

// Text is the content used for vectorization: title, tags and summary.
func (it Item) Text() string {
	return it.Title + " " + it.Tags + " " + it.Summary
}

// Tokenize splits text into normalized tokens (lowercase words longer than two runes).
func Tokenize(text string) []string {
	f := func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsNumber(c)
	}
	fields := strings.FieldsFunc(strings.ToLower(text), f)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) > 2 { // Skip very short words
			tokens = append(tokens, field)
		}
	}
	return tokens
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
