package storage

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/knowledge-engine/movierec/internal/search"
)

const maxSlugRunes = 64

// ErrNotFound is returned by Get when no item is stored under the title
var ErrNotFound = errors.New("item not found in storage")

// ItemStorage defines the interface for persisting items discovered through external lookups
type ItemStorage interface {
	Save(item search.Item) error
	Get(title string) (*search.Item, error)
	List() ([]search.Item, error)
	Close() error
}

// FileStorage implements ItemStorage using one JSON file per item
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{
		baseDir: baseDir,
	}, nil
}

// Save writes the item to a JSON file named after its title.
// Saving a title twice overwrites the earlier file.
func (s *FileStorage) Save(item search.Item) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("cannot store item without a title")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, safeFilename(item.Title))

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Get retrieves a stored item by title
func (s *FileStorage) Get(title string) (*search.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.baseDir, safeFilename(title))

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var item search.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &item, nil
}

// List returns every stored item ordered by file name
func (s *FileStorage) List() ([]search.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	items := make([]search.Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		var item search.Item
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", entry.Name(), err)
		}
		items = append(items, item)
	}

	return items, nil
}

// Close is a no-op for file storage
func (s *FileStorage) Close() error {
	return nil
}

// safeFilename maps a title to a file name. Letters and digits of any script
// are kept for readability; the FNV suffix over the normalized title keeps
// distinct titles apart. Titles differing only in case or surrounding space
// share a file.
func safeFilename(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	n := 0
	for _, r := range normalized {
		if n == maxSlugRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}

	h := fnv.New32a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("%s-%08x.json", b.String(), h.Sum32())
}
