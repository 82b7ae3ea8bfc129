// Package driver - Ordered endpoint failover with per-endpoint retry.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/logging"
)

// endpointSet iterates a chain's ordered endpoint list for one logical
// call. Endpoint i+1 is not contacted until endpoint i has exhausted
// its retries. Rate-limit responses wait the back-off plus the chain's
// rate-limit penalty before the next attempt.
type endpointSet struct {
	params *chain.Params
	urls   []string
	sleep  sleepFunc
	log    *logging.Logger

	mu     sync.Mutex
	active string // endpoint of the last successful call
}

func newEndpointSet(params *chain.Params, urls []string, sleep sleepFunc, log *logging.Logger) *endpointSet {
	if sleep == nil {
		sleep = defaultSleep
	}
	if len(urls) == 0 {
		urls = params.Endpoints()
	}
	return &endpointSet{
		params: params,
		urls:   urls,
		sleep:  sleep,
		log:    log,
	}
}

// do runs fn against each endpoint in order until one succeeds.
func (e *endpointSet) do(ctx context.Context, op string, fn func(ctx context.Context, url string) error) error {
	var lastErr error

	for _, url := range e.urls {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = e.params.BaseDelay
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		bo.MaxInterval = 10 * time.Minute
		bo.MaxElapsedTime = 0
		bo.Reset()

		for attempt := 0; attempt < e.params.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := fn(ctx, url)
			if err == nil {
				e.setActive(url)
				return nil
			}
			lastErr = err

			wait := bo.NextBackOff()
			if isRateLimit(err) {
				// The endpoint asked us to slow down; honor the wait
				// even when this was its last attempt.
				wait += e.params.RateLimitWait
				e.log.Debug("rate limited", "op", op, "endpoint", url,
					"attempt", attempt, "wait", wait)
				if serr := e.sleep(ctx, wait); serr != nil {
					return serr
				}
				continue
			}

			e.log.Debug("endpoint call failed", "op", op, "endpoint", url,
				"attempt", attempt, "error", err)
			if attempt < e.params.MaxRetries-1 {
				if serr := e.sleep(ctx, wait); serr != nil {
					return serr
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints configured for %s", e.params.Name)
	}
	return fmt.Errorf("%s failed on all %d endpoint(s): %w", op, len(e.urls), lastErr)
}

func (e *endpointSet) setActive(url string) {
	e.mu.Lock()
	e.active = url
	e.mu.Unlock()
}

// Active returns the endpoint of the most recent successful call.
func (e *endpointSet) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}
