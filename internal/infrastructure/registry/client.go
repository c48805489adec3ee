package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// DefaultBaseURL is the public NPPES NPI Registry API
const DefaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"

// ClientConfig holds configuration for the registry client
type ClientConfig struct {
	BaseURL           string
	Version           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	Backoff           time.Duration
	ResultLimit       int
}

// Client handles communication with the NPI Registry API.
// One Client, and so one rate limiter, is shared by every concurrent lookup.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	version     string
	resultLimit int
	maxAttempts int
	backoff     time.Duration
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
	now         func() time.Time
}

// NewClient creates a new registry client
func NewClient(config ClientConfig, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Version == "" {
		config.Version = "2.1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff <= 0 {
		config.Backoff = 500 * time.Millisecond
	}
	if config.ResultLimit <= 0 {
		config.ResultLimit = 5
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		baseURL:     config.BaseURL,
		version:     config.Version,
		resultLimit: config.ResultLimit,
		maxAttempts: config.MaxAttempts,
		backoff:     config.Backoff,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:      logging.Component(logger, "registry"),
		now:         time.Now,
	}
}

// exponentialBackoff returns the wait before the next attempt: base, 2*base, 4*base, ...
func exponentialBackoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<(attempt-1))
}

// buildURL encodes a lookup query as registry parameters
func (c *Client) buildURL(query domain.LookupQuery) (string, error) {
	params := url.Values{}
	params.Set("version", c.version)
	params.Set("limit", strconv.Itoa(c.resultLimit))

	switch query.Type {
	case domain.HolderIndividual:
		params.Set("enumeration_type", string(domain.HolderIndividual))
		params.Set("first_name", strings.TrimSpace(query.FirstName))
		params.Set("last_name", strings.TrimSpace(query.LastName))
	case domain.HolderOrganization:
		params.Set("enumeration_type", string(domain.HolderOrganization))
		params.Set("organization_name", strings.TrimSpace(query.OrganizationName))
	default:
		return "", fmt.Errorf("%w: unknown holder type %q", domain.ErrInvalidQuery, query.Type)
	}

	return fmt.Sprintf("%s?%s", c.baseURL, params.Encode()), nil
}

// Search returns every result the registry reports for the query, in registry order.
func (c *Client) Search(ctx context.Context, query domain.LookupQuery) (*domain.RegistrySearchResponse, error) {
	if !query.Searchable() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuery, query.Name())
	}

	reqURL, err := c.buildURL(query)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, exponentialBackoff(c.backoff, attempt-1)); err != nil {
				return nil, err
			}
		}

		// Every attempt spends from the shared budget
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("query", query.Name()).Msg("registry request failed")
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: reading body: %v", domain.ErrRegistryUnavailable, readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, query.Name())
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Str("query", query.Name()).Msg("registry returned retryable status")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrRegistryUnavailable, resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: status %d: %s", domain.ErrRegistryRejected, resp.StatusCode, truncate(string(body), 200))
		}

		var searchResp domain.RegistrySearchResponse
		if err := json.Unmarshal(body, &searchResp); err != nil {
			return nil, fmt.Errorf("%w: decoding response: %v", domain.ErrRegistryUnavailable, err)
		}

		if len(searchResp.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrRegistryRejected, searchResp.Errors[0].Description)
		}

		if len(searchResp.Results) == 0 {
			c.logger.Debug().Str("query", query.Name()).Str("type", string(query.Type)).Msg("no registry results")
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, query.Name())
		}

		c.logger.Debug().Str("query", query.Name()).Int("results", len(searchResp.Results)).Msg("registry results")
		return &searchResp, nil
	}

	c.logger.Warn().Err(lastErr).Str("query", query.Name()).Int("attempts", c.maxAttempts).Msg("all registry attempts failed")
	return nil, lastErr
}

// Lookup returns the top-ranked registry result. The holder type is reported
// as the registry gave it; checking it against the query is the caller's job.
func (c *Client) Lookup(ctx context.Context, query domain.LookupQuery) (*domain.LookupResult, error) {
	resp, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return MapToLookupResult(&resp.Results[0], c.now())
}

// doRequest executes an HTTP GET request
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "npimatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
