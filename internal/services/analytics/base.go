package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"MarketCore/pkg/config"
	xhttp "MarketCore/pkg/http"
	applogger "MarketCore/pkg/logger"
)

// ErrNotConfigured is returned when no service URL is set.
var ErrNotConfigured = errors.New("analytics service not configured")

// HTTPServiceBase is the shared foundation of the model-service clients: JSON
// POST with exponential-backoff retries behind a circuit breaker.
type HTTPServiceBase struct {
	baseURL    string
	client     *xhttp.Client
	breaker    *gobreaker.CircuitBreaker
	retries    int
	maxElapsed time.Duration
	log        *applogger.Logger
}

// NewHTTPServiceBase builds the client from the projection settings.
func NewHTTPServiceBase(cfg config.ProjectionConfig, log *applogger.Logger) *HTTPServiceBase {
	if log == nil {
		log = applogger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	b := &HTTPServiceBase{
		baseURL:    cfg.URL,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries:    cfg.Retries,
		maxElapsed: cfg.MaxElapsed,
		log:        log,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "projection",
		MaxRequests: 1,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	return b
}

// Enabled reports whether a service URL is configured.
func (b *HTTPServiceBase) Enabled() bool { return b.baseURL != "" }

// State returns the breaker state.
func (b *HTTPServiceBase) State() gobreaker.State { return b.breaker.State() }

// PostJSON posts payload to path under baseURL once and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return ErrNotConfigured
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries PostJSON with exponential backoff; 4xx responses
// other than 429 are not retried. The whole retry sequence counts as one call
// for the circuit breaker, and an open breaker fails fast.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.baseURL == "" {
		return ErrNotConfigured
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 50 * time.Millisecond
		if b.maxElapsed > 0 {
			eb.MaxElapsedTime = b.maxElapsed
		}
		var policy backoff.BackOff = eb
		if b.retries >= 0 {
			policy = backoff.WithMaxRetries(eb, uint64(b.retries))
		}
		return nil, backoff.Retry(func() error {
			err := b.PostJSON(ctx, path, payload, dest)
			var se *xhttp.StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(policy, ctx))
	})
	return err
}
