package corpus

import "github.com/knowledge-engine/movierec/internal/search"

// ensureUniqueIDs assigns fresh IDs to items whose ID is unset or repeated.
func ensureUniqueIDs(items []search.Item) []search.Item {
	maxID := 0
	for _, it := range items {
		if it.ID > maxID {
			maxID = it.ID
		}
	}

	seen := make(map[int]bool, len(items))
	for i := range items {
		id := items[i].ID
		if id <= 0 || seen[id] {
			maxID++
			id = maxID
			items[i].ID = id
		}
		seen[id] = true
	}
	return items
}

func nextID(items []search.Item, want int) int {
	maxID := 0
	taken := false
	for _, it := range items {
		if it.ID > maxID {
			maxID = it.ID
		}
		if it.ID == want {
			taken = true
		}
	}
	if want > 0 && !taken {
		return want
	}
	return maxID + 1
}
