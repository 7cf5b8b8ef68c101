package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-insight/internal/circuitbreaker"
	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/retry"
)

const maxResponseBytes = 16 << 20

// httpClient is the shared transport for provider clients. It throttles with a
// token bucket, retries transient failures behind a circuit breaker and tracks
// provider health.
type httpClient struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	retry   *retry.RetryConfig
	breaker *circuitbreaker.CircuitBreaker
	health  *healthTracker
}

func newHTTPClient(name string, cfg config.ProviderConfig) *httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if cfg.RequestsPerSecond > 1 {
			burst = int(cfg.RequestsPerSecond)
		}
	}

	retryCfg := retry.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries
	}
	retryCfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrCircuitOpen) && apperrors.IsRetryable(err)
	}

	return &httpClient{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		retry:   retryCfg,
		breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Name:                   name,
			MaxConsecutiveFailures: cfg.BreakerFailures,
			Cooldown:               cfg.BreakerCooldown,
			IsFailure:              apperrors.IsRetryable,
		}),
		health: newHealthTracker(name),
	}
}

// get issues a GET request and returns the body of a 2xx response
func (c *httpClient) get(ctx context.Context, endpoint string, query url.Values, headers map[string]string) ([]byte, error) {
	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	err := retry.WithRetry(ctx, c.retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.breaker.Execute(ctx, func() error {
			start := time.Now()
			b, err := c.do(ctx, target, headers)
			if err != nil {
				c.health.RecordFailure()
				return err
			}
			c.health.RecordSuccess(time.Since(start))
			body = b
			return nil
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return apperrors.NewProviderError(c.name, err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return body, nil
}

func (c *httpClient) do(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperrors.NewProviderTimeoutError(c.name)
		}
		return nil, apperrors.NewProviderError(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewProviderError(c.name, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"provider": c.name,
			"status":   resp.StatusCode,
		}).Debug("Provider returned non-2xx status")
		return nil, apperrors.NewProviderStatusError(c.name, resp.StatusCode, string(body))
	}

	return body, nil
}

// Health returns the provider's request health
func (c *httpClient) Health() *ProviderHealth {
	h := c.health.Snapshot()
	h.CircuitState = string(c.breaker.GetState())
	return h
}
