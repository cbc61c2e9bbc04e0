package search

import "strings"

// IndexOf finds the corpus position of the item matching query.
// Matching is case-insensitive: an exact title match wins, otherwise the first
// title containing the query. Short queries can match unrelated titles; that
// permissiveness is deliberate. Returns -1 when nothing matches.
func IndexOf(items []Item, query string) int {
	q := normalize(query)
	if q == "" {
		return -1
	}
	for i, it := range items {
		if normalize(it.Title) == q {
			return i
		}
	}
	for i, it := range items {
		if strings.Contains(normalize(it.Title), q) {
			return i
		}
	}
	return -1
}

// Resolve returns the item matching query; see IndexOf.
func Resolve(items []Item, query string) (Item, bool) {
	i := IndexOf(items, query)
	if i < 0 {
		return Item{}, false
	}
	return items[i], true
}

// IndexOfExact finds an item whose normalized title equals title.
func IndexOfExact(items []Item, title string) int {
	t := normalize(title)
	if t == "" {
		return -1
	}
	for i, it := range items {
		if normalize(it.Title) == t {
			return i
		}
	}
	return -1
}
