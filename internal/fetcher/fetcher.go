package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/net/html"

	"github.com/knowledge-engine/movierec/internal/config"
	"github.com/knowledge-engine/movierec/internal/metrics"
)

const maxBodyBytes = 4 << 20

// ErrNotFound is returned for 404 responses. It does not count as a breaker failure.
var ErrNotFound = errors.New("resource not found")

// StatusError reports an unexpected HTTP status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-200 status code %d from %s", e.StatusCode, e.URL)
}

// Gate delays outbound requests; politeness.Gate implements it
type Gate interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config holds fetcher settings
type Config struct {
	Name      string // breaker name, used in logs and metrics
	Timeout   time.Duration
	UserAgent string
	Breaker   config.BreakerConfig
}

// Fetcher performs GET requests against an external API behind a politeness
// gate and a circuit breaker
type Fetcher struct {
	client    *http.Client
	gate      Gate
	breaker   *gobreaker.CircuitBreaker[[]byte]
	userAgent string
	logger    *logrus.Entry
}

// NewFetcher creates a fetcher. gate may be nil.
func NewFetcher(cfg Config, gate Gate, logger *logrus.Entry) *Fetcher {
	if logger == nil {
		logger = logrus.WithField("component", "fetcher")
	}
	if cfg.Name == "" {
		cfg.Name = "provider-api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "movierec/1.0"
	}
	if cfg.Breaker.FailureRatio <= 0 {
		cfg.Breaker = config.Default().Breaker
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		gate:      gate,
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("breaker", cfg.Name),
	}
	f.breaker = newBreaker(cfg.Name, cfg.Breaker, f.logger)
	return f
}

func newBreaker(name string, cfg config.BreakerConfig, logger *logrus.Entry) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.FailureRatio
			if shouldTrip {
				logger.WithFields(logrus.Fields{
					"failures":     counts.TotalFailures,
					"failure_rate": failureRatio,
				}).Warn("Opening circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Info("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(stateValue(to)))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})
}

// GetJSON fetches rawURL and decodes the JSON body into out
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := f.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

// Get fetches rawURL and returns the raw body
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.gate != nil {
		if err := f.gate.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	body, err := f.breaker.Execute(func() ([]byte, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.logger.WithError(err).Warn("Request rejected by circuit breaker")
		}
		return nil, err
	}
	return body, nil
}

// BreakerState reports the circuit breaker state as closed, half-open or open
func (f *Fetcher) BreakerState() string {
	return f.breaker.State().String()
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// TextFromHTML reduces an HTML fragment to its visible text
func TextFromHTML(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var textBuilder strings.Builder
	inScript := false
	inStyle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; keep what we have
			return cleanText(textBuilder.String())

		case html.StartTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = true
			case "style":
				inStyle = true
			}

		case html.EndTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = false
			case "style":
				inStyle = false
			}

		case html.TextToken:
			if !inScript && !inStyle {
				text := strings.TrimSpace(tokenizer.Token().Data)
				if text != "" {
					textBuilder.WriteString(text + " ")
				}
			}
		}
	}
}

// cleanText removes excessive whitespace
func cleanText(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
