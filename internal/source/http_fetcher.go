// internal/source/http_fetcher.go - HTTP document fetching
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/valpere/vecnorm/internal"
	"github.com/valpere/vecnorm/internal/config"
)

// HTTPFetcher implements ByteFetcher using HTTP requests
type HTTPFetcher struct {
	client     *http.Client
	config     *config.ServerConfig
	userAgent  string
	retryDelay time.Duration
}

// NewHTTPFetcher creates a new HTTP-based fetcher
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Network.MaxIdleConns,
		IdleConnTimeout:     cfg.Network.IdleConnTimeout,
		DisableKeepAlives:   cfg.Network.DisableKeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxConnsPerHost:     cfg.Batch.Concurrency,
	}

	// Configure proxy if specified
	if cfg.Network.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.Network.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Timeout:   cfg.Server.Timeout,
		Transport: transport,
	}

	return &HTTPFetcher{
		client:     client,
		config:     &cfg.Server,
		userAgent:  cfg.Network.UserAgent,
		retryDelay: cfg.ToApplicationConfig().RetryDelay,
	}
}

// WithRetryDelay sets the base delay between retries; attempt n waits n² times it
func (f *HTTPFetcher) WithRetryDelay(d time.Duration) *HTTPFetcher {
	f.retryDelay = d
	return f
}

// Fetch retrieves a single document from the configured server
func (f *HTTPFetcher) Fetch(ctx context.Context, request *Request) (*Response, error) {
	start := time.Now()

	req, err := f.buildHTTPRequest(ctx, request)
	if err != nil {
		buildErr := internal.NewError(internal.ErrorCodeValidation, "failed to build HTTP request", err)
		return &Response{Request: request, Error: buildErr}, buildErr
	}

	resp, err := f.client.Do(req)
	if err != nil {
		code := internal.ErrorCodeNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			code = internal.ErrorCodeTimeout
		}
		netErr := internal.NewError(code, "HTTP request failed", err)
		return &Response{
			Request:   request,
			FetchTime: time.Since(start),
			Error:     netErr,
		}, netErr
	}
	defer resp.Body.Close()

	// Handle compressed responses
	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			gzErr := internal.NewError(internal.ErrorCodeProcessing, "failed to create gzip reader", err)
			return &Response{
				Request:    request,
				StatusCode: resp.StatusCode,
				Headers:    resp.Header,
				FetchTime:  time.Since(start),
				Error:      gzErr,
			}, gzErr
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		readErr := internal.NewError(internal.ErrorCodeNetwork, "failed to read response body", err)
		return &Response{
			Request:    request,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			FetchTime:  time.Since(start),
			Error:      readErr,
		}, readErr
	}

	response := &Response{
		Request:    request,
		Data:       data,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		Size:       len(data),
		FetchTime:  time.Since(start),
	}

	if resp.StatusCode != http.StatusOK {
		code := internal.ErrorCodeNetwork
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusNoContent:
			code = internal.ErrorCodeNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			code = internal.ErrorCodePermission
		}
		response.Error = internal.NewError(code, fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, request), nil)
		return response, response.Error
	}

	return response, nil
}

// FetchWithRetry implements retry logic for failed requests
func (f *HTTPFetcher) FetchWithRetry(ctx context.Context, request *Request) (*Response, error) {
	var lastResponse *Response
	var lastErr error

	attempts := 0
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDelay := time.Duration(attempt*attempt) * f.retryDelay
			log.Debug().Str("location", request.String()).Int("attempt", attempt).Dur("delay", backoffDelay).Msg("retrying request")

			select {
			case <-ctx.Done():
				return lastResponse, ctx.Err()
			case <-time.After(backoffDelay):
			}
		}

		attempts++
		response, err := f.Fetch(ctx, request)
		if err == nil {
			return response, nil
		}

		lastResponse = response
		lastErr = err

		// Determine if we should retry based on the error type
		if !f.shouldRetry(response, err) {
			break
		}
	}

	return lastResponse, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// buildHTTPRequest constructs an HTTP request from a fetch request
func (f *HTTPFetcher) buildHTTPRequest(ctx context.Context, request *Request) (*http.Request, error) {
	if request.Location == "" {
		return nil, fmt.Errorf("request for %s has no URL", request.TileID())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set default headers
	req.Header.Set("Accept", "application/x-protobuf, application/geo+json, application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", f.userAgent)

	// Add authentication if configured
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}

	// Add server-level headers from configuration
	for key, value := range f.config.Headers {
		req.Header.Set(key, value)
	}

	// Add request-specific headers
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// shouldRetry determines whether a failed request should be retried
func (f *HTTPFetcher) shouldRetry(response *Response, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Always retry on network errors
	if response == nil || response.StatusCode == 0 {
		return !internal.HasCode(err, internal.ErrorCodeValidation)
	}

	// Don't retry on client errors (4xx) except rate limiting
	if response.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return false
	}

	// Retry on server errors (5xx)
	return response.StatusCode >= 500
}
