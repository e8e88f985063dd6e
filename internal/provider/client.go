package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/akashmahlaz/rockreach-sub000/internal/usage"
	"github.com/akashmahlaz/rockreach-sub000/pkg/clients"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// ProviderError is a terminal non-2xx response from the data provider. The
// body is surfaced verbatim to the caller as data, never thrown.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Client issues outbound calls to the external data provider using the
// tenant's resolved policy. It owns retry, backoff and the per-tenant
// concurrency ceiling, and emits exactly one usage record per call.
type Client struct {
	policies *PolicyCache
	ledger   usage.Recorder
	logger   logging.Logger
	http     *http.Client
	breaker  *clients.CircuitBreaker
	name     string

	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func NewClient(policies *PolicyCache, ledger usage.Recorder, logger logging.Logger, providerName string) *Client {
	return &Client{
		policies: policies,
		ledger:   ledger,
		logger:   logger,
		http: &http.Client{
			Timeout:   60 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		breaker: clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
			Name:   providerName,
			Logger: logger,
		}),
		name:  providerName,
		slots: make(map[string]*semaphore.Weighted),
	}
}

// Call performs one outbound request on behalf of tenantID. Empty query
// parameters are dropped before the URL is built. A disabled or missing
// integration fails fast with no retry and no usage record.
func (c *Client) Call(ctx context.Context, tenantID, userID, path, method string, query map[string]string, body interface{}) (json.RawMessage, error) {
	policy, err := c.policies.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sem := c.tenantSlot(tenantID, policy.MaxConcurrency)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	started := time.Now()
	result, callErr := c.do(ctx, policy, path, method, query, body)

	entry := usage.Record{
		TenantID:      tenantID,
		UserID:        userID,
		Provider:      c.name,
		Endpoint:      path,
		Method:        method,
		UnitsConsumed: 1,
		Status:        "success",
		DurationMs:    time.Since(started).Milliseconds(),
	}
	if callErr != nil {
		entry.Status = "error"
		entry.Error = callErr.Error()
		var provErr *ProviderError
		if errors.As(callErr, &provErr) {
			entry.Status = fmt.Sprintf("error_%d", provErr.Status)
		}
	}
	c.ledger.Record(context.WithoutCancel(ctx), entry)

	return result, callErr
}

func (c *Client) do(ctx context.Context, policy Policy, path, method string, query map[string]string, body interface{}) (json.RawMessage, error) {
	reqURL, err := buildURL(policy.BaseURL, path, query)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", policy.SecretKey)

	resp, err := clients.DoWithRetry(ctx, c.http, req, clients.RetryConfig{
		MaxRetries:     policy.MaxRetries,
		BaseDelay:      policy.BaseDelay,
		MaxDelay:       policy.MaxDelay,
		RetryFunc:      clients.DefaultShouldRetry,
		CircuitBreaker: c.breaker,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) tenantSlot(tenantID string, maxConcurrency int) *semaphore.Weighted {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.slots[tenantID]
	if !ok {
		sem = semaphore.NewWeighted(int64(maxConcurrency))
		c.slots[tenantID] = sem
	}
	return sem
}

func buildURL(baseURL, path string, query map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("build request url: %w", err)
	}
	values := u.Query()
	for key, value := range query {
		if key == "" || value == "" {
			continue
		}
		values.Set(key, value)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}
