package politeness_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/movierec/internal/config"
	"github.com/knowledge-engine/movierec/internal/politeness"
)

func init() {
	// Set log level to warn to reduce noise during tests
	logrus.SetLevel(logrus.WarnLevel)
}

func testConfig() config.PolitenessConfig {
	return config.PolitenessConfig{
		MinDelay:            10 * time.Millisecond,
		RequestTimeout:      5 * time.Second,
		RobotsCacheDuration: 1 * time.Minute,
		EnableRobotsCheck:   false,
		UserAgent:           "TestAgent/1.0",
	}
}

func TestGate_InvalidURLs(t *testing.T) {
	gate := politeness.NewGate(testConfig(), nil)

	for _, raw := range []string{"", "example.com/path", "ftp://example.com/file", "http://"} {
		err := gate.Wait(context.Background(), raw)
		assert.ErrorIs(t, err, politeness.ErrInvalidURL, raw)
	}
	assert.Equal(t, int64(4), gate.Statistics().FailedRequests)
}

func TestGate_SpacesRequestsPerHost(t *testing.T) {
	cfg := testConfig()
	cfg.MinDelay = 50 * time.Millisecond
	gate := politeness.NewGate(cfg, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.Wait(context.Background(), "http://example.com/page"))
	}
	// First request passes immediately, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	stats := gate.Statistics()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, 1, stats.Hosts)
}

func TestGate_HostsAreIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.MinDelay = time.Hour
	gate := politeness.NewGate(cfg, nil)

	require.NoError(t, gate.Wait(context.Background(), "http://a.example/"))
	require.NoError(t, gate.Wait(context.Background(), "http://b.example/"))
	assert.Equal(t, 2, gate.Statistics().Hosts)
}

func TestGate_ContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.MinDelay = time.Hour
	gate := politeness.NewGate(cfg, nil)

	require.NoError(t, gate.Wait(context.Background(), "http://example.com/one"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := gate.Wait(ctx, "http://example.com/two")
	assert.Error(t, err)
}

func TestGate_RobotsCheck(t *testing.T) {
	robotsContent := `User-agent: *
Disallow: /private/
Allow: /public/
`
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(robotsContent))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.EnableRobotsCheck = true
	gate := politeness.NewGate(cfg, nil)

	err := gate.Wait(context.Background(), server.URL+"/private/secret.html")
	assert.ErrorIs(t, err, politeness.ErrDisallowed)
	assert.NoError(t, gate.Wait(context.Background(), server.URL+"/public/page.html"))

	// robots.txt is fetched once and then served from cache
	assert.Equal(t, int32(1), robotsHits.Load())
	assert.Equal(t, int64(1), gate.Statistics().RejectedRequests)
}

func TestGate_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	cfg := testConfig()
	cfg.EnableRobotsCheck = true
	gate := politeness.NewGate(cfg, nil)

	assert.NoError(t, gate.Wait(context.Background(), server.URL+"/anything"))
}

func TestGate_RobotsCheckDisabled(t *testing.T) {
	gate := politeness.NewGate(testConfig(), nil)

	// No robots.txt request is made, so an unreachable host still passes
	assert.NoError(t, gate.Wait(context.Background(), "http://unreachable.invalid/private/"))
	assert.Equal(t, int64(1), gate.Statistics().AllowedRequests)
}

func TestGate_ConcurrentWaits(t *testing.T) {
	cfg := testConfig()
	cfg.MinDelay = time.Millisecond
	gate := politeness.NewGate(cfg, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Wait(context.Background(), "http://example.com/"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), gate.Statistics().AllowedRequests)
}
