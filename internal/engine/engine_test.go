package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/movierec/internal/corpus"
	"github.com/knowledge-engine/movierec/internal/engine"
	"github.com/knowledge-engine/movierec/internal/politeness"
	"github.com/knowledge-engine/movierec/internal/search"
	"github.com/knowledge-engine/movierec/internal/storage"
)

// Mocks

type MockSource struct {
	mock.Mock
}

func (m *MockSource) LoadCorpus(ctx context.Context) ([]search.Item, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]search.Item)
	out := make([]search.Item, len(items))
	copy(out, items)
	return out, args.Error(1)
}

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) LookupSingle(ctx context.Context, title string) (*search.Item, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Item), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(item search.Item) error {
	args := m.Called(item)
	return args.Error(0)
}

func (m *MockStore) Get(title string) (*search.Item, error) {
	args := m.Called(title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Item), args.Error(1)
}

type staticDiagnostics struct{}

func (staticDiagnostics) BreakerState() string { return "half-open" }

func (staticDiagnostics) Statistics() politeness.Statistics {
	return politeness.Statistics{AllowedRequests: 3, RejectedRequests: 1, Hosts: 1}
}

// posterEnricher sets a poster derived from the title, and reverses nothing
type posterEnricher struct {
	calls int
}

func (p *posterEnricher) Enrich(ctx context.Context, items []search.Item) []search.Item {
	p.calls++
	out := make([]search.Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].PosterURL = "https://img/" + out[i].Title
	}
	return out
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("test", "engine")
}

func scenarioCorpus() []search.Item {
	return []search.Item{
		{ID: 1, Title: "Inception", Category: "Hollywood", Tags: "sci-fi thriller", Year: 2010, Summary: "A thief steals secrets through dreams"},
		{ID: 2, Title: "The Thief", Category: "Hollywood", Tags: "crime", Year: 2005, Summary: "A thief steals jewels"},
		{ID: 3, Title: "Romance Story", Category: "Bollywood", Tags: "romance", Year: 2015, Summary: "Two people fall in love"},
	}
}

func newEngine(t *testing.T, items []search.Item) (*engine.Engine, *MockSource) {
	t.Helper()
	src := new(MockSource)
	src.On("LoadCorpus", mock.Anything).Return(items, nil)
	cache := corpus.New(src, time.Hour, testLogger())
	return engine.NewEngine(cache, testLogger()), src
}

func TestRecommend_Scenario(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())

	rec, err := eng.Recommend(context.Background(), "inception", 2)
	require.NoError(t, err)

	assert.Equal(t, "Inception", rec.Item.Title)
	require.Len(t, rec.Neighbors, 2)
	// "thief" and "steals" occur in 2 of 3 items, so their idf is ln(3/3) = 0
	// and both neighbors tie at 0; corpus order decides.
	assert.Equal(t, "The Thief", rec.Neighbors[0].Item.Title)
	assert.Equal(t, "Romance Story", rec.Neighbors[1].Item.Title)
	for _, n := range rec.Neighbors {
		assert.NotEqual(t, "Inception", n.Item.Title)
	}
}

func TestRecommend_SharedTermsRankFirst(t *testing.T) {
	items := []search.Item{
		{ID: 1, Title: "Inception", Tags: "heist", Summary: "A thief steals secrets through dreams"},
		{ID: 2, Title: "The Thief", Tags: "heist", Summary: "A thief steals jewels"},
		{ID: 3, Title: "Romance Story", Tags: "romance", Summary: "Two people fall in love"},
		{ID: 4, Title: "Cooking Show", Tags: "food", Summary: "Chefs compete with recipes"},
		{ID: 5, Title: "Space Trip", Tags: "adventure", Summary: "Astronauts travel to planets"},
	}
	eng, _ := newEngine(t, items)

	rec, err := eng.Recommend(context.Background(), "Inception", 3)
	require.NoError(t, err)
	require.Len(t, rec.Neighbors, 3)
	assert.Equal(t, "The Thief", rec.Neighbors[0].Item.Title)
	assert.Greater(t, rec.Neighbors[0].Score, rec.Neighbors[1].Score)
}

func TestRecommend_ClampsTopN(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())

	rec, err := eng.Recommend(context.Background(), "Inception", 0)
	require.NoError(t, err)
	assert.Len(t, rec.Neighbors, 1)

	rec, err = eng.Recommend(context.Background(), "Inception", 1000)
	require.NoError(t, err)
	assert.Len(t, rec.Neighbors, 2)
}

func TestRecommend_EmptyCorpus(t *testing.T) {
	eng, _ := newEngine(t, []search.Item{})

	_, err := eng.Recommend(context.Background(), "Inception", 5)
	assert.ErrorIs(t, err, search.ErrEmptyCorpus)
}

func TestRecommend_SourceError(t *testing.T) {
	src := new(MockSource)
	src.On("LoadCorpus", mock.Anything).Return(nil, errors.New("no file"))
	eng := engine.NewEngine(corpus.New(src, time.Hour, testLogger()), testLogger())

	_, err := eng.Recommend(context.Background(), "Inception", 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrNotFound)
}

func TestRecommend_NotFoundWithoutLookup(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())

	_, err := eng.Recommend(context.Background(), "Thief Story", 5)
	require.ErrorIs(t, err, engine.ErrNotFound)

	var nf *engine.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Thief Story", nf.Title)
	assert.Contains(t, nf.Suggestions, "The Thief")
	assert.Contains(t, nf.Suggestions, "Romance Story")
}

func TestRecommend_NotFoundAfterLookup(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	lookup.On("LookupSingle", mock.Anything, "Unknown Film").Return(nil, nil)
	eng.Lookup = lookup

	_, err := eng.Recommend(context.Background(), "Unknown Film", 5)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	lookup.AssertExpectations(t)
	assert.Equal(t, int64(0), eng.Corpus.Rebuilds())
}

func TestRecommend_LookupErrorIsNotFound(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	lookup.On("LookupSingle", mock.Anything, "Unknown Film").Return(nil, errors.New("breaker open"))
	eng.Lookup = lookup

	_, err := eng.Recommend(context.Background(), "Unknown Film", 5)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecommend_AppendForcesOneRebuild(t *testing.T) {
	eng, src := newEngine(t, scenarioCorpus())

	heat := &search.Item{Title: "Heat", Category: "TMDB", Tags: "crime", Year: 1995, Summary: "A thief and a detective"}
	lookup := new(MockLookup)
	lookup.On("LookupSingle", mock.Anything, "Heat").Return(heat, nil).Once()
	eng.Lookup = lookup

	store := new(MockStore)
	store.On("Get", "Heat").Return(nil, storage.ErrNotFound).Once()
	store.On("Save", mock.MatchedBy(func(it search.Item) bool { return it.Title == "Heat" })).Return(nil).Once()
	eng.Discovered = store

	// Warm the matrix
	_, err := eng.Recommend(context.Background(), "Inception", 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), eng.Corpus.Rebuilds())
	before, err := eng.Corpus.Get(context.Background())
	require.NoError(t, err)
	oldMatrix, err := eng.Corpus.Matrix(before)
	require.NoError(t, err)
	oldRows := len(oldMatrix.Rows)

	rec, err := eng.Recommend(context.Background(), "Heat", 5)
	require.NoError(t, err)
	assert.Equal(t, "Heat", rec.Item.Title)
	assert.Equal(t, 4, rec.Item.ID)
	assert.Len(t, rec.Neighbors, 3)
	assert.Equal(t, int64(2), eng.Corpus.Rebuilds(), "append must force exactly one rebuild")

	// The next request reuses the rebuilt matrix and finds Heat locally
	_, err = eng.Recommend(context.Background(), "Heat", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), eng.Corpus.Rebuilds())

	assert.Equal(t, 3, oldRows, "earlier matrix keeps its rows")
	assert.Len(t, oldMatrix.Rows, 3)
	lookup.AssertExpectations(t)
	store.AssertExpectations(t)
	src.AssertNumberOfCalls(t, "LoadCorpus", 1)
}

func TestRecommend_LookupReturnsExistingTitle(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	// The catalogue normalizes a misspelled query to a title we already hold
	lookup.On("LookupSingle", mock.Anything, "Inceptoin").Return(&search.Item{Title: "Inception"}, nil)
	eng.Lookup = lookup

	rec, err := eng.Recommend(context.Background(), "Inceptoin", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Item.ID)
	assert.Equal(t, 3, eng.Status().Items)
}

func TestRecommend_PersistFailureIsNotFatal(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	lookup.On("LookupSingle", mock.Anything, "Heat").Return(&search.Item{Title: "Heat", Summary: "crime"}, nil)
	eng.Lookup = lookup
	store := new(MockStore)
	store.On("Get", "Heat").Return(nil, errors.New("permission denied"))
	store.On("Save", mock.Anything).Return(errors.New("disk full"))
	eng.Discovered = store

	rec, err := eng.Recommend(context.Background(), "Heat", 5)
	require.NoError(t, err)
	assert.Equal(t, "Heat", rec.Item.Title)
}

func TestRecommend_ConcurrentLookupsAppendOnce(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	lookup.On("LookupSingle", mock.Anything, "Casablanca").
		After(50*time.Millisecond).
		Return(&search.Item{Title: "Casablanca", Tags: "romance", Summary: "Lovers meet in wartime"}, nil)
	eng.Lookup = lookup
	_, err := eng.Corpus.Get(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*engine.Recommendation, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := eng.Recommend(context.Background(), "Casablanca", 5)
			if assert.NoError(t, err) {
				results[i] = rec
			}
		}(i)
	}
	wg.Wait()

	snap, err := eng.Corpus.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 4)
	assert.Len(t, search.SearchByTag(snap.Items, "romance"), 2)

	for _, rec := range results {
		require.NotNil(t, rec)
		assert.Equal(t, "Casablanca", rec.Item.Title)
		assert.Len(t, rec.Neighbors, 3)
		for _, n := range rec.Neighbors {
			assert.NotEqual(t, "Casablanca", n.Item.Title)
		}
	}
}

func TestRecommend_UsesDiscoveredStoreBeforeLookup(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	lookup := new(MockLookup)
	eng.Lookup = lookup

	store := new(MockStore)
	store.On("Get", "Heat").Return(&search.Item{ID: 9, Title: "Heat", Tags: "crime", Summary: "A thief and a detective"}, nil).Once()
	eng.Discovered = store

	rec, err := eng.Recommend(context.Background(), "Heat", 5)
	require.NoError(t, err)
	assert.Equal(t, "Heat", rec.Item.Title)
	assert.Equal(t, 9, rec.Item.ID)
	assert.Len(t, rec.Neighbors, 3)

	lookup.AssertNotCalled(t, "LookupSingle", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Save", mock.Anything)
	store.AssertExpectations(t)
}

func TestRecommend_DiscoveredStoreWithoutLookup(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	store := new(MockStore)
	store.On("Get", "Casablanca").Return(nil, storage.ErrNotFound)
	eng.Discovered = store

	_, err := eng.Recommend(context.Background(), "Casablanca", 5)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecommend_EnrichmentKeepsRanking(t *testing.T) {
	plain, _ := newEngine(t, scenarioCorpus())
	enriched, _ := newEngine(t, scenarioCorpus())
	enricher := &posterEnricher{}
	enriched.Enricher = enricher

	want, err := plain.Recommend(context.Background(), "Inception", 5)
	require.NoError(t, err)
	got, err := enriched.Recommend(context.Background(), "Inception", 5)
	require.NoError(t, err)

	assert.Equal(t, 1, enricher.calls)
	assert.Equal(t, "https://img/Inception", got.Item.PosterURL)
	require.Len(t, got.Neighbors, len(want.Neighbors))
	for i := range want.Neighbors {
		assert.Equal(t, want.Neighbors[i].Item.ID, got.Neighbors[i].Item.ID)
		assert.Equal(t, want.Neighbors[i].Score, got.Neighbors[i].Score)
		assert.Equal(t, "https://img/"+got.Neighbors[i].Item.Title, got.Neighbors[i].Item.PosterURL)
	}
}

func TestSearchOperations(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	ctx := context.Background()

	byCategory, err := eng.SearchByCategory(ctx, "hollywood")
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	byTag, err := eng.SearchByTag(ctx, "ROMANCE")
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "Romance Story", byTag[0].Title)

	hits, err := eng.KeywordSearch(ctx, "thief dreams", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Inception", hits[0].Item.Title)
	assert.Equal(t, 2, hits[0].Score)

	hits, err = eng.KeywordSearch(ctx, "thief", []string{"Bollywood"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStatus(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())

	status := eng.Status()
	assert.Equal(t, 0, status.Items)
	assert.Empty(t, status.CacheAge)

	_, err := eng.Recommend(context.Background(), "Inception", 5)
	require.NoError(t, err)

	status = eng.Status()
	assert.Equal(t, 3, status.Items)
	assert.Equal(t, int64(1), status.Rebuilds)
	assert.True(t, status.MatrixReady)
	assert.True(t, status.Fresh)
	assert.NotEmpty(t, status.CacheAge)
	assert.False(t, status.Lookup)
	assert.Empty(t, status.BreakerState)
	assert.Nil(t, status.Politeness)
}

func TestStatus_Diagnostics(t *testing.T) {
	eng, _ := newEngine(t, scenarioCorpus())
	eng.Breaker = staticDiagnostics{}
	eng.Gate = staticDiagnostics{}

	status := eng.Status()
	assert.Equal(t, "half-open", status.BreakerState)
	require.NotNil(t, status.Politeness)
	assert.Equal(t, int64(3), status.Politeness.AllowedRequests)
	assert.Equal(t, int64(1), status.Politeness.RejectedRequests)
}
