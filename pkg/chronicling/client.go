package chronicling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsagger/pkg/captcha"
	"newsagger/pkg/config"
	errs "newsagger/pkg/errors"
	"newsagger/pkg/logger"
	"newsagger/pkg/ratelimit"
	"newsagger/pkg/retry"
)

// Client is a rate-limited client for the Chronicling America API.
// Every request waits on the CAPTCHA cooling-off gate and the request
// pacer before touching the network.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	pacer        ratelimit.Limiter
	captcha      *captcha.Manager
	backoff      *retry.ErrorTypeBackoff
	maxRetries   int
	pollInterval time.Duration
	logger       logger.Logger
}

// NewClient creates a new archive API client
func NewClient(cfg *config.Config, mgr *captcha.Manager, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if mgr == nil {
		mgr = captcha.NewManager(cfg.RateLimit.CoolingOffPeriod, log)
	}

	pollInterval := cfg.RateLimit.CaptchaPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.API.Timeout,
		},
		baseURL:      strings.TrimSuffix(cfg.API.BaseURL, "/") + "/",
		userAgent:    cfg.API.UserAgent,
		pacer:        ratelimit.NewPacer(cfg.RateLimit.RequestDelay, cfg.RateLimit.RequestsPerMinute),
		captcha:      mgr,
		backoff:      retry.NewErrorTypeBackoff(),
		maxRetries:   cfg.RateLimit.MaxRetries,
		pollInterval: pollInterval,
		logger:       log,
	}
}

// BaseURL returns the configured base URL with a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CaptchaManager returns the CAPTCHA cooling-off gate shared by this client
func (c *Client) CaptchaManager() *captcha.Manager {
	return c.captcha
}

// SetPacer replaces the request pacer. The default pacer enforces the
// courtesy floor toward the real archive; tests running against a local
// mock swap in an unfloored limiter.
func (c *Client) SetPacer(p ratelimit.Limiter) {
	if p != nil {
		c.pacer = p
	}
}

// waitForClearance blocks while the global cooling-off period is active,
// polling at the configured interval
func (c *Client) waitForClearance(ctx context.Context) error {
	for {
		ok, reason := c.captcha.CanProceed()
		if ok {
			return nil
		}

		c.logger.WarnWithFields("waiting for CAPTCHA cooling-off to expire", map[string]interface{}{
			"reason":        reason,
			"poll_interval": c.pollInterval.String(),
		})

		if err := retry.Wait(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

// Get performs a rate-limited GET against an archive endpoint and
// returns the raw JSON body. It handles 429 backoff, transient network
// retries, and CAPTCHA detection.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	requestURL := c.baseURL + strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.waitForClearance(ctx); err != nil {
			return nil, err
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, requestURL, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errs.IsCaptcha(err) {
			return nil, err
		}

		errType := errs.TypeOf(err)
		if !errs.IsRetryable(errType) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		delay := c.backoff.GetBackoffForError(errType).NextDelay(attempt)
		c.logger.WarnWithFields("request failed, backing off", map[string]interface{}{
			"endpoint":   endpoint,
			"attempt":    attempt,
			"error_type": string(errType),
			"delay":      delay.String(),
			"error":      err.Error(),
		})
		if err := retry.Wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", endpoint, c.maxRetries, lastErr)
}

// doRequest performs a single HTTP request and classifies the outcome
func (c *Client) doRequest(ctx context.Context, requestURL, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatalRequest, "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration.String(),
		})
		return nil, errs.NewNetwork("network error", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration.String(),
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewNetwork("failed to read response body", err)
	}

	if err := c.checkResponse(resp.StatusCode, body, endpoint); err != nil {
		return nil, err
	}

	return json.RawMessage(body), nil
}

// checkResponse classifies an HTTP response. The archive serves CAPTCHA
// challenges as HTML with status 200, so a 200 that does not look like
// JSON is sniffed for challenge markers.
func (c *Client) checkResponse(statusCode int, body []byte, endpoint string) error {
	switch {
	case statusCode == http.StatusOK:
		if !looksLikeJSON(body) {
			lowered := strings.ToLower(string(body))
			if strings.Contains(lowered, "captcha") || strings.Contains(lowered, "recaptcha") {
				c.captcha.Record(endpoint)
				return errs.NewCaptcha(endpoint, "challenge markers in non-JSON response body")
			}
		}
		return nil
	case statusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limited by archive", map[string]interface{}{
			"endpoint": endpoint,
			"status":   statusCode,
		})
		return errs.NewRateLimited("rate limited by archive, long backoff required", statusCode)
	case statusCode >= http.StatusInternalServerError:
		return errs.NewNetwork(fmt.Sprintf("server returned status %d", statusCode), nil)
	case statusCode >= http.StatusBadRequest:
		return errs.NewFatalRequest(fmt.Sprintf("request rejected with status %d", statusCode), statusCode)
	default:
		return nil
	}
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// GetJSON performs a GET request and decodes the JSON response into target
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, target interface{}) error {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"endpoint":     endpoint,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.Wrap(errs.ErrorTypeDataIntegrity, "failed to parse JSON response", err)
	}

	return nil
}

// GetNewspapers fetches one page of the digitized titles listing
func (c *Client) GetNewspapers(ctx context.Context, page, rows int) (*NewspapersResponse, error) {
	var response NewspapersResponse
	if err := c.GetJSON(ctx, NewspapersEndpoint, NewspapersParams(page, rows), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetNewspaperIssues fetches the detailed record for a title, including
// its issue listing
func (c *Client) GetNewspaperIssues(ctx context.Context, lccn string) (*NewspaperDetail, error) {
	var detail NewspaperDetail
	if err := c.GetJSON(ctx, NewspaperIssuesEndpoint(lccn), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// SearchPages searches newspaper pages. Date parameters in params are
// reformatted for the search endpoint; pagination and format are applied
// on top of the caller's facet parameters.
func (c *Client) SearchPages(ctx context.Context, params url.Values, page, rows int) (*SearchResponse, error) {
	if rows <= 0 || rows > MaxRows {
		rows = MaxRows
	}
	if page <= 0 {
		page = 1
	}

	searchParams := url.Values{}
	for key, values := range params {
		for _, value := range values {
			searchParams.Add(key, value)
		}
	}
	if d := searchParams.Get("date1"); d != "" {
		searchParams.Set("date1", FormatSearchDate(d, false))
	}
	if d := searchParams.Get("date2"); d != "" {
		searchParams.Set("date2", FormatSearchDate(d, true))
	}
	searchParams.Set("format", "json")
	searchParams.Set("page", strconv.Itoa(page))
	searchParams.Set("rows", strconv.Itoa(rows))

	var response SearchResponse
	if err := c.GetJSON(ctx, SearchEndpoint, searchParams, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetBatches fetches one page of the digitization batches listing
func (c *Client) GetBatches(ctx context.Context, page int) (*BatchesResponse, error) {
	params := url.Values{}
	params.Set("format", "json")
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}

	var response BatchesResponse
	if err := c.GetJSON(ctx, BatchesEndpoint, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetAllBatches fetches every digitization batch, following pagination
func (c *Client) GetAllBatches(ctx context.Context) ([]BatchEntry, error) {
	var batches []BatchEntry
	page := 1
	for {
		response, err := c.GetBatches(ctx, page)
		if err != nil {
			return batches, err
		}
		if len(response.Batches) == 0 {
			return batches, nil
		}
		batches = append(batches, response.Batches...)
		if response.Next == "" {
			return batches, nil
		}
		page++
	}
}

// GetBatch fetches the detailed record for a digitization batch,
// including its issue listing
func (c *Client) GetBatch(ctx context.Context, name string) (*BatchDetail, error) {
	var detail BatchDetail
	if err := c.GetJSON(ctx, BatchEndpoint(name), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetIssue fetches the detailed record for an issue by its archive URL
func (c *Client) GetIssue(ctx context.Context, issueURL string) (*IssueDetail, error) {
	endpoint := EndpointForURL(c.baseURL, issueURL)
	var detail IssueDetail
	if err := c.GetJSON(ctx, endpoint, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Fetch performs a rate-limited GET for content downloads and returns
// the open response for streaming. The caller must close the body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.waitForClearance(ctx); err != nil {
		return nil, err
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatalRequest, "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.NewNetwork("network error", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, errs.NewRateLimited("rate limited by archive, long backoff required", resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		resp.Body.Close()
		return nil, errs.NewNetwork(fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	default:
		resp.Body.Close()
		return nil, errs.NewFatalRequest(fmt.Sprintf("download rejected with status %d", resp.StatusCode), resp.StatusCode)
	}
}
