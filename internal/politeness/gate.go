package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"github.com/knowledge-engine/movierec/internal/config"
)

var (
	// ErrDisallowed is returned when robots.txt forbids the URL for our user agent
	ErrDisallowed = errors.New("URL blocked by robots.txt")
	// ErrInvalidURL is returned for URLs without a host or with a non-HTTP scheme
	ErrInvalidURL = errors.New("invalid URL")
)

// Gate spaces out outbound requests per host and honours robots.txt.
// It is safe for concurrent use.
type Gate struct {
	config config.PolitenessConfig
	logger *logrus.Entry
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	robots   map[string]*robotsEntry

	stats struct {
		allowed  atomic.Int64
		rejected atomic.Int64
		failed   atomic.Int64
	}
}

// robotsEntry caches robots.txt data; robots is nil when the host has none
type robotsEntry struct {
	robots    *robotstxt.RobotsData
	fetchTime time.Time
}

// Statistics holds gate counters
type Statistics struct {
	AllowedRequests  int64 `json:"allowed_requests"`
	RejectedRequests int64 `json:"rejected_requests"`
	FailedRequests   int64 `json:"failed_requests"`
	Hosts            int   `json:"hosts"`
}

// NewGate creates a politeness gate
func NewGate(cfg config.PolitenessConfig, logger *logrus.Entry) *Gate {
	if logger == nil {
		logger = logrus.WithField("component", "politeness_gate")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gate{
		config:   cfg,
		logger:   logger,
		client:   &http.Client{Timeout: timeout},
		limiters: make(map[string]*rate.Limiter),
		robots:   make(map[string]*robotsEntry),
	}
}

// Wait blocks until a request to rawURL may be sent. It fails when the URL is
// malformed, robots.txt disallows it, or ctx ends first.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	parsedURL, err := parseHTTPURL(rawURL)
	if err != nil {
		g.stats.failed.Add(1)
		return err
	}

	if g.config.EnableRobotsCheck {
		allowed, err := g.isAllowed(ctx, parsedURL)
		if err != nil {
			g.logger.WithError(err).WithField("url", rawURL).Warn("Robots check failed")
		} else if !allowed {
			g.stats.rejected.Add(1)
			g.logger.WithField("url", rawURL).Debug("URL blocked by robots.txt")
			return fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
	}

	limiter := g.limiter(parsedURL.Host)
	if err := limiter.Wait(ctx); err != nil {
		g.stats.failed.Add(1)
		return fmt.Errorf("politeness wait for %s: %w", parsedURL.Host, err)
	}

	g.stats.allowed.Add(1)
	return nil
}

// Statistics returns current counters
func (g *Gate) Statistics() Statistics {
	g.mu.Lock()
	hosts := len(g.limiters)
	g.mu.Unlock()

	return Statistics{
		AllowedRequests:  g.stats.allowed.Load(),
		RejectedRequests: g.stats.rejected.Load(),
		FailedRequests:   g.stats.failed.Load(),
		Hosts:            hosts,
	}
}

func (g *Gate) isAllowed(ctx context.Context, u *url.URL) (bool, error) {
	robotsData, err := g.getRobotsData(ctx, u)
	if err != nil {
		// Allow on robots.txt fetch failure
		return true, err
	}
	if robotsData == nil {
		return true, nil
	}

	group := robotsData.FindGroup(g.config.UserAgent)
	if group == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

func (g *Gate) limiter(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(g.config.MinDelay), 1)
	g.limiters[host] = l
	g.logger.WithField("host", host).Debug("Created host limiter")
	return l
}

// getRobotsData fetches and caches robots.txt data for the URL's host
func (g *Gate) getRobotsData(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	g.mu.Lock()
	entry, exists := g.robots[u.Host]
	g.mu.Unlock()

	if exists && time.Since(entry.fetchTime) < g.config.RobotsCacheDuration {
		return entry.robots, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", g.config.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	var robotsData *robotstxt.RobotsData
	if resp.StatusCode == http.StatusOK {
		robotsData, err = robotstxt.FromResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
		}
	}

	// Cache the result (even if nil for 404s)
	g.mu.Lock()
	g.robots[u.Host] = &robotsEntry{robots: robotsData, fetchTime: time.Now()}
	g.mu.Unlock()

	return robotsData, nil
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: URL must have a host", ErrInvalidURL)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: only HTTP/HTTPS URLs are supported", ErrInvalidURL)
	}
	return parsedURL, nil
}
