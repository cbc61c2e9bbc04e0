package search

import (
	"sort"
	"strings"
)

// Hit is a keyword search match.
type Hit struct {
	Item  Item `json:"item"`
	Score int  `json:"score"`
}

// KeywordSearch scores items by how many distinct query tokens occur in their
// title, tags or summary. An optional category filter (case-insensitive, any
// of categories) is applied first. Results are ordered by score, then newest
// year first, and limited to ClampLimit(limit). It never returns nil.
func KeywordSearch(items []Item, query string, categories []string, limit int) []Hit {
	hits := make([]Hit, 0)
	tokens := uniqueTokens(query)
	if len(tokens) == 0 || len(items) == 0 {
		return hits
	}
	allowed := categorySet(categories)

	for _, it := range items {
		if len(allowed) > 0 {
			if _, ok := allowed[normalize(it.Category)]; !ok {
				continue
			}
		}
		haystack := strings.ToLower(it.Text())
		score := 0
		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, Hit{Item: it, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Item.Year > hits[j].Item.Year
	})

	if limit = ClampLimit(limit); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SearchByCategory returns items whose category equals category, ignoring case.
func SearchByCategory(items []Item, category string) []Item {
	result := make([]Item, 0)
	c := normalize(category)
	if c == "" {
		return result
	}
	for _, it := range items {
		if normalize(it.Category) == c {
			result = append(result, it)
		}
	}
	return result
}

// SearchByTag returns items whose tags contain tag, ignoring case.
func SearchByTag(items []Item, tag string) []Item {
	result := make([]Item, 0)
	t := normalize(tag)
	if t == "" {
		return result
	}
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Tags), t) {
			result = append(result, it)
		}
	}
	return result
}

// Suggest proposes up to n titles sharing words with query, for "did you mean" hints.
func Suggest(items []Item, query string, n int) []string {
	suggestions := make([]string, 0)
	tokens := uniqueTokens(query)
	if len(tokens) == 0 || n < 1 {
		return suggestions
	}

	titles := make([]Item, len(items))
	for i, it := range items {
		titles[i] = Item{Title: it.Title, Year: it.Year}
	}
	for _, hit := range KeywordSearch(titles, query, nil, n) {
		suggestions = append(suggestions, hit.Item.Title)
	}
	return suggestions
}

func uniqueTokens(text string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, t := range Tokenize(text) {
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func categorySet(categories []string) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c = normalize(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
