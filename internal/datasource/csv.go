// Package datasource loads the item corpus from a CSV file or a SQLite
// database and optionally merges items persisted after external lookups.
package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/search"
)

// Column names of the movie dataset
const (
	ColumnID        = "movie_id"
	ColumnTitle     = "title"
	ColumnIndustry  = "industry"
	ColumnGenre     = "genre"
	ColumnLanguage  = "language"
	ColumnYear      = "release_year"
	ColumnOverview  = "overview"
	ColumnPosterURL = "poster_url"
)

// requiredColumns must be present in every dataset header
var requiredColumns = []string{ColumnTitle, ColumnGenre, ColumnOverview}

// ErrMissingColumns is returned when the dataset header lacks a required column
var ErrMissingColumns = errors.New("dataset is missing required columns")

// CSVSource reads the corpus from a CSV file on every load
type CSVSource struct {
	Path   string
	logger *logrus.Entry
}

func NewCSVSource(path string, logger *logrus.Entry) *CSVSource {
	if logger == nil {
		logger = logrus.WithField("component", "csv_source")
	}
	return &CSVSource{Path: path, logger: logger}
}

func (s *CSVSource) LoadCorpus(ctx context.Context) ([]search.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	items, skipped, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", s.Path, err)
	}
	if skipped > 0 {
		s.logger.WithField("skipped", skipped).Warn("Skipped dataset rows without a title")
	}
	s.logger.WithFields(logrus.Fields{"path": s.Path, "items": len(items)}).Debug("Dataset read")
	return items, nil
}

// ReadCSV parses a dataset with a header row. Header names are matched
// case-insensitively, blank cells become empty strings and rows without a
// title are skipped and counted.
func ReadCSV(r io.Reader) (items []search.Item, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, 0, err
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	items = make([]search.Item, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		cell := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		item := search.Item{
			ID:        parseNumber(cell(ColumnID)),
			Title:     cell(ColumnTitle),
			Category:  cell(ColumnIndustry),
			Tags:      cell(ColumnGenre),
			Locale:    cell(ColumnLanguage),
			Year:      parseNumber(cell(ColumnYear)),
			Summary:   cell(ColumnOverview),
			PosterURL: cell(ColumnPosterURL),
		}
		if item.Title == "" {
			skipped++
			continue
		}
		items = append(items, item)
	}

	return items, skipped, nil
}

// parseNumber accepts integers and float spellings such as "2010.0"; anything else is 0
func parseNumber(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return 0
}
