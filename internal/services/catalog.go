package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"vidcat/internal/cache"
	"vidcat/internal/failure"
	"vidcat/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 10
	maxRetries       = 3
	retryDelay       = 2 * time.Second
	userAgent        = "vidcat/1.0"
	maxResponseSize  = 5 * 1024 * 1024 // 5MB
)

// CatalogClient talks to the remote catalog service. Every method returns a
// *failure.Failure for expected error conditions.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	cache      *cache.SearchCache
}

type ClientConfig struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables pacing
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string
	Logger     *logrus.Logger
	Cache      *cache.SearchCache
	HTTPClient *http.Client
}

func NewClient(baseURL string) *CatalogClient {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:    baseURL,
		Timeout:    defaultTimeout,
		RateLimit:  defaultRateLimit,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		UserAgent:  userAgent,
		Logger:     logrus.New(),
	})
}

func NewClientWithConfig(config *ClientConfig) *CatalogClient {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = userAgent
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}

	if config.APIToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: config.APIToken,
			TokenType:   "Bearer",
		}))
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &CatalogClient{
		baseURL:    config.BaseURL,
		httpClient: httpClient,
		logger:     config.Logger,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		userAgent:  config.UserAgent,
		cache:      config.Cache,
	}
}

// List reads the full catalog.
func (c *CatalogClient) List(ctx context.Context) ([]models.Video, error) {
	var videos []models.Video
	if err := c.do(ctx, "list", http.MethodGet, "/api/videos", nil, nil, &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

func (c *CatalogClient) Get(ctx context.Context, id models.ID) (models.Video, error) {
	if err := checkID("get", id); err != nil {
		return models.Video{}, err
	}

	var video models.Video
	if err := c.do(ctx, "get", http.MethodGet, videoPath(id), nil, nil, &video); err != nil {
		return models.Video{}, err
	}
	return video, nil
}

// Create adds a record. Defaults are filled in before validation. Create is
// never retried: if the response is lost after the service stored the record,
// a retry would duplicate it, so the caller decides whether to refresh and
// check before trying again.
func (c *CatalogClient) Create(ctx context.Context, fields models.VideoFields) (models.Video, error) {
	fields = fields.WithCreateDefaults()
	if err := fields.ValidateCreate(); err != nil {
		return models.Video{}, failure.Validation("create", err)
	}

	var video models.Video
	if err := c.do(ctx, "create", http.MethodPost, "/api/videos", nil, fields, &video); err != nil {
		return models.Video{}, err
	}
	c.cache.Purge(ctx)

	c.logger.WithFields(logrus.Fields{
		"id":    video.ID,
		"title": video.Title,
	}).Info("Video created")
	return video, nil
}

// Update applies a partial update.
func (c *CatalogClient) Update(ctx context.Context, id models.ID, fields models.VideoFields) (models.Video, error) {
	if err := checkID("update", id); err != nil {
		return models.Video{}, err
	}
	if fields.IsEmpty() {
		return models.Video{}, failure.Validation("update", errors.New("no fields to update"))
	}
	if err := fields.Validate(); err != nil {
		return models.Video{}, failure.Validation("update", err)
	}

	var video models.Video
	if err := c.do(ctx, "update", http.MethodPut, videoPath(id), nil, fields, &video); err != nil {
		return models.Video{}, err
	}
	c.cache.Purge(ctx)
	return video, nil
}

func (c *CatalogClient) Delete(ctx context.Context, id models.ID) error {
	if err := checkID("delete", id); err != nil {
		return err
	}
	if err := c.do(ctx, "delete", http.MethodDelete, videoPath(id), nil, nil, nil); err != nil {
		return err
	}
	c.cache.Purge(ctx)
	return nil
}

// AdvanceEpisode sets the current episode. The upper bound is enforced by
// the service, which knows the authoritative episode count.
func (c *CatalogClient) AdvanceEpisode(ctx context.Context, id models.ID, episode int) (models.Video, error) {
	if err := checkID("advance_episode", id); err != nil {
		return models.Video{}, err
	}
	if episode < 1 {
		return models.Video{}, failure.Validation("advance_episode", &models.FieldError{Field: "current_episode", Reason: "must be at least 1"})
	}

	var video models.Video
	body := models.ProgressRequest{CurrentEpisode: episode}
	if err := c.do(ctx, "advance_episode", http.MethodPut, videoPath(id)+"/progress", nil, body, &video); err != nil {
		return models.Video{}, err
	}
	c.cache.Purge(ctx)
	return video, nil
}

func (c *CatalogClient) Search(ctx context.Context, query models.SearchQuery) (models.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return models.SearchResult{}, failure.Validation("search", err)
	}

	if cached, ok := c.cache.Get(ctx, query); ok {
		return cached, nil
	}

	c.logger.WithFields(logrus.Fields{
		"query": query.Term,
		"page":  query.Page,
	}).Debug("Searching catalog")

	var payload models.SearchPayload
	if err := c.do(ctx, "search", http.MethodGet, "/api/search", query.Values(), nil, &payload); err != nil {
		return models.SearchResult{}, err
	}

	result := models.SearchResult{Hits: payload.Videos, Total: payload.Total, Query: query}
	c.cache.Set(ctx, result)
	return result, nil
}

func (c *CatalogClient) Stats(ctx context.Context) (models.StatsSnapshot, error) {
	var payload models.StatsPayload
	if err := c.do(ctx, "stats", http.MethodGet, "/api/stats", nil, nil, &payload); err != nil {
		return models.StatsSnapshot{}, err
	}
	return payload.Snapshot(), nil
}

// PlayInfo returns playback links for a search hit.
func (c *CatalogClient) PlayInfo(ctx context.Context, id models.ID) (models.PlayInfo, error) {
	if err := checkID("play_info", id); err != nil {
		return models.PlayInfo{}, err
	}

	var info models.PlayInfo
	path := "/api/video/" + url.PathEscape(id.String()) + "/play"
	if err := c.do(ctx, "play_info", http.MethodGet, path, nil, nil, &info); err != nil {
		return models.PlayInfo{}, err
	}
	return info, nil
}

func videoPath(id models.ID) string {
	return "/api/videos/" + url.PathEscape(id.String())
}

func checkID(op string, id models.ID) error {
	if id == "" {
		return failure.Validation(op, &models.FieldError{Field: "id", Reason: "is required"})
	}
	return nil
}

// do sends one request and decodes the envelope's data into out. Only GET
// requests are retried, on transport errors and 5xx responses.
func (c *CatalogClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return failure.Validation(op, fmt.Errorf("failed to marshal request: %w", err))
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return failure.Transport(op, err)
		}

		status, data, err := c.send(ctx, method, endpoint, payload)
		if err != nil {
			lastErr = failure.Transport(op, err)
			if c.shouldRetry(ctx, attempt, attempts, endpoint, err) {
				continue
			}
			return lastErr
		}

		if status >= http.StatusInternalServerError {
			lastErr = statusFailure(op, status, data)
			if c.shouldRetry(ctx, attempt, attempts, endpoint, lastErr) {
				continue
			}
			return lastErr
		}

		c.logger.WithFields(logrus.Fields{
			"op":            op,
			"url":           endpoint,
			"attempt":       attempt,
			"status":        status,
			"response_size": len(data),
		}).Debug("API request successful")

		return decode(op, status, data, out)
	}

	return lastErr
}

func (c *CatalogClient) send(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithFields(logrus.Fields{
		"method":     method,
		"url":        endpoint,
		"request_id": requestID,
	}).Debug("Sending catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	data, err := readRespBody(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *CatalogClient) shouldRetry(ctx context.Context, attempt, attempts int, endpoint string, err error) bool {
	if attempt >= attempts-1 || ctx.Err() != nil {
		return false
	}

	delay := time.Duration(attempt+1) * c.retryDelay
	c.logger.WithFields(logrus.Fields{
		"attempt": attempt + 1,
		"url":     endpoint,
		"error":   err.Error(),
		"delay":   delay,
	}).Warn("API request failed, retrying...")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func readRespBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > maxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("response too large: exceeded %d bytes", maxResponseSize)
	}
	return data, nil
}

// decode maps a non-5xx response onto the failure taxonomy and unpacks the
// envelope's data into out.
func decode(op string, status int, data []byte, out any) error {
	if status == http.StatusNoContent {
		return nil
	}

	var envelope models.APIResponse
	envErr := json.Unmarshal(data, &envelope)

	switch {
	case status == http.StatusNotFound:
		msg := ""
		if envErr == nil {
			msg = envelope.Error
		}
		return failure.NotFound(op, msg)
	case status < 200 || status > 299:
		return statusFailure(op, status, data)
	case envErr != nil:
		return failure.Transport(op, fmt.Errorf("failed to decode response envelope: %w", envErr))
	case !envelope.Success:
		return failure.Server(op, envelope.Error)
	}

	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return failure.Transport(op, fmt.Errorf("failed to decode response data: %w", err))
	}
	return nil
}

// statusFailure prefers the service's own message when the body is a
// success=false envelope.
func statusFailure(op string, status int, data []byte) *failure.Failure {
	var envelope models.APIResponse
	if err := json.Unmarshal(data, &envelope); err == nil && !envelope.Success && envelope.Error != "" {
		return failure.Server(op, envelope.Error)
	}
	return failure.Transport(op, fmt.Errorf("API returned status code %d", status))
}
