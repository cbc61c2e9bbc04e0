package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/movierec/internal/engine"
	"github.com/knowledge-engine/movierec/internal/search"
)

const moviesCSV = `movie_id,title,industry,genre,language,release_year,overview
1,Inception,Hollywood,Sci-Fi Thriller,English,2010,A thief who steals corporate secrets through dream-sharing technology.
2,The Dark Knight,Hollywood,Action Crime,English,2008,Batman faces the Joker in Gotham.
3,Dhoom,Bollywood,Action Thriller,Hindi,2004,A cop chases a gang of bike thieves who steals from banks.
`

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movies.csv")
	require.NoError(t, os.WriteFile(path, []byte(moviesCSV), 0o644))
	return path
}

// runCmd executes the root command with args and returns stdout
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"PROVIDER_NAME", "DATASET_DRIVER", "DATASET_PATH", "DATASET_DISCOVERED_DIR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRecommend_OneShot(t *testing.T) {
	out, err := runCmd(t, "", "recommend", "--dataset", writeDataset(t), "-n", "2", "inception")
	require.NoError(t, err)

	assert.Contains(t, out, "Because you asked about Inception (2010) [Hollywood]")
	assert.Contains(t, out, " 1. ")
	assert.Contains(t, out, " 2. ")
}

func TestRecommend_JSON(t *testing.T) {
	out, err := runCmd(t, "", "recommend", "--dataset", writeDataset(t), "--json", "Inception")
	require.NoError(t, err)

	var rec engine.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Inception", rec.Item.Title)
	assert.Len(t, rec.Neighbors, 2)
}

func TestRecommend_NotFound(t *testing.T) {
	out, err := runCmd(t, "", "recommend", "--dataset", writeDataset(t), "Casablanca")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.Contains(t, out, `No movie found matching "Casablanca"`)
}

func TestRecommend_Interactive(t *testing.T) {
	out, err := runCmd(t, "Casablanca\n\n\nDhoom\n1\nexit\n", "recommend", "--dataset", writeDataset(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Loaded 3 movies.")
	assert.Contains(t, out, `Sample recommendations for "Inception"`)
	assert.Contains(t, out, "How many recommendations would you like? (default 5): ")
	assert.Contains(t, out, `No movie found matching "Casablanca"`)
	assert.Contains(t, out, "Goodbye!")

	marker := "Because you asked about Dhoom (2004) [Bollywood]"
	require.Contains(t, out, marker)
	dhoom := out[strings.Index(out, marker):]
	assert.Contains(t, dhoom, " 1. ")
	assert.NotContains(t, dhoom, " 2. ", "count of 1 limits the answer to one movie")
}

func TestRecommend_InteractiveBadCount(t *testing.T) {
	out, err := runCmd(t, "Dhoom\nmany\nexit\n", "recommend", "--dataset", writeDataset(t), "--no-sample")
	require.NoError(t, err)

	assert.Contains(t, out, `Input error: "many" is not a number`)
	assert.NotContains(t, out, "Because you asked about")
	assert.Contains(t, out, "Goodbye!")
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("  ", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = parseCount(" 7 ", 5)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = parseCount("seven", 5)
	assert.Error(t, err)
}

func TestRecommend_InteractiveEOF(t *testing.T) {
	out, err := runCmd(t, "", "recommend", "--dataset", writeDataset(t), "--no-sample")
	require.NoError(t, err)
	assert.NotContains(t, out, "Sample recommendations")
	assert.Contains(t, out, "Enter a movie title")
}

func TestRecommend_MissingDataset(t *testing.T) {
	_, err := runCmd(t, "", "recommend", "--dataset", filepath.Join(t.TempDir(), "none.csv"), "Inception")
	require.Error(t, err)
}

func TestSearch_Keyword(t *testing.T) {
	out, err := runCmd(t, "", "search", "--dataset", writeDataset(t), "--json", "thief", "steals")
	require.NoError(t, err)

	var hits []search.Hit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Score)
}

func TestSearch_CategoryFilter(t *testing.T) {
	out, err := runCmd(t, "", "search", "--dataset", writeDataset(t), "--category", "bollywood", "steals")
	require.NoError(t, err)
	assert.Contains(t, out, "Dhoom")
	assert.NotContains(t, out, "Inception")
}

func TestSearch_ByTagAndCategory(t *testing.T) {
	out, err := runCmd(t, "", "search", "--dataset", writeDataset(t), "--tag", "action")
	require.NoError(t, err)
	assert.Contains(t, out, "The Dark Knight")
	assert.Contains(t, out, "Dhoom")
	assert.NotContains(t, out, "Inception")

	out, err = runCmd(t, "", "search", "--dataset", writeDataset(t), "--by-category", "Hollywood")
	require.NoError(t, err)
	assert.Contains(t, out, "Inception")
	assert.NotContains(t, out, "Dhoom")

	_, err = runCmd(t, "", "search", "--dataset", writeDataset(t), "--tag", "--by-category", "x")
	assert.Error(t, err)
}

func TestImport_ThenRecommendFromSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "movies.db")

	out, err := runCmd(t, "", "import", "--db", db, writeDataset(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 movies")

	out, err = runCmd(t, "", "recommend", "--driver", "sqlite", "--dataset", db, "The Dark Knight")
	require.NoError(t, err)
	assert.Contains(t, out, "Because you asked about The Dark Knight (2008)")
}

func TestBuildEngine_UnknownDriver(t *testing.T) {
	_, err := runCmd(t, "", "recommend", "--driver", "postgres", "Inception")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset driver")
}
