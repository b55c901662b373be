package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

// Key rotation retry limits for search backends
const (
	MaxRetryAttempts  = 5
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 2 * time.Second
	BackoffMultiplier = 2.0

	maxSearchBody = 1 << 20
)

// searchBackoff returns the wait after a rotated attempt
func searchBackoff(attempt int) time.Duration {
	backoff := InitialBackoff
	for range attempt {
		backoff = time.Duration(float64(backoff) * BackoffMultiplier)
		if backoff > MaxBackoff {
			return MaxBackoff
		}
	}
	return backoff
}

// BaseSearchClient holds what every search backend shares: the HTTP client,
// the key pool, and the backend name used in errors and logs.
type BaseSearchClient struct {
	HTTPClient   *http.Client
	KeyRotator   *KeyRotator
	ProviderName string
	logger       *logging.Logger
}

// NewBaseSearchClient creates a base client. A nil rotator means the backend is keyless.
func NewBaseSearchClient(keyRotator *KeyRotator, providerName string, logger *logging.Logger) *BaseSearchClient {
	if keyRotator == nil {
		keyRotator = NewKeyRotator(nil)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &BaseSearchClient{
		HTTPClient:   logging.NewHTTPClient(constants.DefaultSearchTimeout, logger),
		KeyRotator:   keyRotator,
		ProviderName: providerName,
		logger:       logger,
	}
}

// GetCurrentKey returns the key the next request will use
func (b *BaseSearchClient) GetCurrentKey() string {
	return b.KeyRotator.GetCurrentKey()
}

// RotateKey moves to the next key in the pool
func (b *BaseSearchClient) RotateKey() error {
	from := b.KeyRotator.GetCurrentIndex()
	if _, err := b.KeyRotator.Rotate(); err != nil {
		return err
	}
	b.logger.Warn("rotated search API key", logging.Fields{
		"provider": b.ProviderName,
		"from":     from + 1,
		"to":       b.KeyRotator.GetCurrentIndex() + 1,
		"keys":     b.KeyRotator.GetKeyCount(),
	})
	return nil
}

// fetchJSON sends req and decodes a 200 response into out. Any other status
// becomes an *APIError so SearchWithRetry can decide whether to rotate.
func (b *BaseSearchClient) fetchJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", b.ProviderName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", b.ProviderName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API error: status code %d", b.ProviderName, resp.StatusCode),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", b.ProviderName, err)
	}
	return nil
}

// SearchFunc performs a single search attempt with the current key
type SearchFunc[T any] func(ctx context.Context, query string) (T, error)

// SearchWithRetry rotates keys on 401/403/429 and retries.
// Other failures are returned immediately.
func SearchWithRetry[T any](
	ctx context.Context,
	query string,
	base *BaseSearchClient,
	doSearch SearchFunc[T],
) (T, error) {
	var zero T

	if base.KeyRotator.GetKeyCount() <= 1 {
		return doSearch(ctx, query)
	}

	var lastErr error
	for attempt := range MaxRetryAttempts {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("search cancelled: %w", err)
		}

		resp, err := doSearch(ctx, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !ShouldRotateKey(apiErr.StatusCode) {
			return zero, err
		}
		if rotateErr := base.RotateKey(); rotateErr != nil {
			return zero, fmt.Errorf("%w (no more %s API keys available)", err, base.ProviderName)
		}

		if attempt < MaxRetryAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("search cancelled: %w", ctx.Err())
			case <-time.After(searchBackoff(attempt)):
			}
		}
	}

	return zero, fmt.Errorf("max retry attempts (%d) exceeded: %w", MaxRetryAttempts, lastErr)
}
