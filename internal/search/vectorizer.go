package search

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptyCorpus is returned when a matrix is requested for a corpus with no items.
var ErrEmptyCorpus = errors.New("corpus is empty")

// Vocabulary is the sorted set of distinct terms across a corpus.
// A term's position in Terms is its column in every document vector.
type Vocabulary struct {
	Terms []string
	index map[string]int
}

// NewVocabulary sorts and deduplicates terms.
func NewVocabulary(terms []string) Vocabulary {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	sorted := make([]string, 0, len(set))
	for t := range set {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	index := make(map[string]int, len(sorted))
	for i, t := range sorted {
		index[t] = i
	}
	return Vocabulary{Terms: sorted, index: index}
}

// BuildVocabulary collects the tokens of every item's title, tags and summary.
func BuildVocabulary(items []Item) Vocabulary {
	var terms []string
	for _, it := range items {
		terms = append(terms, Tokenize(it.Text())...)
	}
	return NewVocabulary(terms)
}

// Len returns the number of terms.
func (v Vocabulary) Len() int {
	return len(v.Terms)
}

// Index returns the column of term.
func (v Vocabulary) Index(term string) (int, bool) {
	i, ok := v.index[term]
	return i, ok
}

// Matrix holds one TF-IDF vector per corpus item, in corpus order.
// Generation identifies the corpus snapshot the rows were built from.
type Matrix struct {
	Vocabulary Vocabulary
	Rows       [][]float64
	Generation uint64
}

// Row returns the vector for item i, or nil when the row is missing or malformed.
func (m *Matrix) Row(i int) []float64 {
	if m == nil || i < 0 || i >= len(m.Rows) {
		return nil
	}
	row := m.Rows[i]
	if len(row) < m.Vocabulary.Len() {
		return nil
	}
	return row
}

// BuildMatrix computes TF-IDF weights for every item over vocab:
//
//	tf(w,d) = count(w in d) / len(d)
//	idf(w)  = ln(N / (df(w) + 1))
//
// Documents without tokens get an all-zero row.
func BuildMatrix(items []Item, vocab Vocabulary) (*Matrix, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCorpus
	}

	// 1. Tokenize once and count document frequencies
	docs := make([][]string, len(items))
	df := make([]int, vocab.Len())
	for i, it := range items {
		tokens := Tokenize(it.Text())
		docs[i] = tokens

		seenInDoc := make(map[int]bool)
		for _, token := range tokens {
			idx, ok := vocab.Index(token)
			if !ok || seenInDoc[idx] {
				continue
			}
			seenInDoc[idx] = true
			df[idx]++
		}
	}

	// 2. Calculate IDF
	n := float64(len(items))
	idf := make([]float64, vocab.Len())
	for j := range idf {
		idf[j] = math.Log(n / (float64(df[j]) + 1))
	}

	// 3. Weight each document
	rows := make([][]float64, len(items))
	for i, tokens := range docs {
		row := make([]float64, vocab.Len())
		if len(tokens) > 0 {
			counts := make(map[int]float64)
			for _, token := range tokens {
				if idx, ok := vocab.Index(token); ok {
					counts[idx]++
				}
			}
			total := float64(len(tokens))
			for idx, count := range counts {
				row[idx] = (count / total) * idf[idx]
			}
		}
		rows[i] = row
	}

	return &Matrix{Vocabulary: vocab, Rows: rows}, nil
}
