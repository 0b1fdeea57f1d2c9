package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	apiKeyHeader     = "x-api-key"
	bucketsCacheKey  = "timeline/buckets"
	defaultBucketTTL = 5 * time.Minute
	maxErrorBody     = 4096
	proxyLabel       = "proxy"
)

type Client struct {
	baseURL  string
	client   *http.Client
	store    CredentialStore
	prompter CredentialPrompter
	logger   *zap.Logger
	metrics  *metrics.Metrics
	buckets  *cache.Cache

	mu     sync.Mutex
	apiKey string

	// promptMu lets one prompt serve every request waiting for a key
	promptMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithCredentialStore persists the key across runs
func WithCredentialStore(s CredentialStore) Option {
	return func(c *Client) { c.store = s }
}

// WithPrompter is asked for a key when none is held or stored
func WithPrompter(p CredentialPrompter) Option {
	return func(c *Client) { c.prompter = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBucketTTL sets how long the bucket listing is reused. Zero or
// negative disables caching.
func WithBucketTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.buckets = nil
			return
		}
		c.buckets = cache.New(ttl, 2*ttl)
	}
}

// NewClient creates a client for an Immich instance. baseURL is the
// server root; "/api" is appended to every endpoint. apiKey may be empty
// when a credential store or prompter is configured.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
		buckets: cache.New(defaultBucketTTL, 2*defaultBucketTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredential replaces the held key and persists it. An empty key
// clears both.
func (c *Client) SetCredential(key string) error {
	key = strings.TrimSpace(key)
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if key == "" {
		return c.store.ClearCredential()
	}
	return c.store.SaveCredential(key)
}

// ClearCredential forgets the held and the stored key
func (c *Client) ClearCredential() error {
	return c.SetCredential("")
}

// HasCredential reports whether a key is held in memory
func (c *Client) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey != ""
}

// credential returns the key to send: the held one, then the stored
// one, then whatever the prompter supplies.
func (c *Client) credential(ctx context.Context, endpoint string) (string, error) {
	c.mu.Lock()
	key := c.apiKey
	c.mu.Unlock()
	if key != "" {
		return key, nil
	}

	if c.store != nil {
		stored, err := c.store.LoadCredential()
		if err != nil {
			c.logger.Warn("failed to load stored API key", zap.Error(err))
		} else if stored = strings.TrimSpace(stored); stored != "" {
			c.mu.Lock()
			c.apiKey = stored
			c.mu.Unlock()
			c.logger.Debug("using stored API key")
			return stored, nil
		}
	}

	if c.prompter != nil {
		c.promptMu.Lock()
		defer c.promptMu.Unlock()

		c.mu.Lock()
		key = c.apiKey
		c.mu.Unlock()
		if key != "" {
			return key, nil
		}

		entered, err := c.prompter.PromptCredential(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		if entered = strings.TrimSpace(entered); entered != "" {
			if err := c.SetCredential(entered); err != nil {
				c.logger.Warn("failed to store API key", zap.Error(err))
			}
			return entered, nil
		}
	}

	return "", &AuthError{Endpoint: endpoint}
}

// discard drops key if it is still the held one, so a rejected key is
// never sent twice. A key replaced in the meantime is left alone, in
// memory and in the store.
func (c *Client) discard(key string) {
	c.mu.Lock()
	held := c.apiKey == key
	if held {
		c.apiKey = ""
	}
	c.mu.Unlock()

	if held && c.store != nil {
		if err := c.store.ClearCredential(); err != nil {
			c.logger.Warn("failed to clear stored API key", zap.Error(err))
		}
	}
}

// send performs an authenticated request and returns the response for a
// 2xx status. The caller closes the body.
func (c *Client) send(ctx context.Context, method, endpoint, label string, query url.Values, body interface{}) (*http.Response, error) {
	key, err := c.credential(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + "/api" + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set(apiKeyHeader, key)
	if label != proxyLabel {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.metrics.ObserveRequest(label, 0)
		return nil, &TransientError{Endpoint: endpoint, Err: err}
	}
	c.metrics.ObserveRequest(label, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		c.discard(key)
		c.metrics.AuthFailure()
		c.logger.Warn("API key rejected, discarded",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, &AuthError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &RequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return resp, nil
}

// request sends a request and decodes the JSON response into out
func (c *Client) request(ctx context.Context, method, endpoint, label string, query url.Values, body, out interface{}) error {
	resp, err := c.send(ctx, method, endpoint, label, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Endpoint: endpoint, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// TimeBuckets lists the per-month photo counts. The listing is reused
// until the cache TTL expires; see RefreshTimeBuckets.
func (c *Client) TimeBuckets(ctx context.Context) ([]models.TimeBucket, error) {
	if c.buckets != nil {
		if cached, ok := c.buckets.Get(bucketsCacheKey); ok {
			return append([]models.TimeBucket(nil), cached.([]models.TimeBucket)...), nil
		}
	}

	var buckets []models.TimeBucket
	if err := c.request(ctx, http.MethodGet, "/timeline/buckets", "timeline/buckets", nil, nil, &buckets); err != nil {
		return nil, err
	}
	c.logger.Debug("fetched time buckets", zap.Int("count", len(buckets)))

	if c.buckets != nil {
		c.buckets.SetDefault(bucketsCacheKey, append([]models.TimeBucket(nil), buckets...))
	}
	return buckets, nil
}

// RefreshTimeBuckets drops the cached listing and fetches it again
func (c *Client) RefreshTimeBuckets(ctx context.Context) ([]models.TimeBucket, error) {
	if c.buckets != nil {
		c.buckets.Delete(bucketsCacheKey)
	}
	return c.TimeBuckets(ctx)
}

// TimelineBucket fetches the assets of one month bucket
func (c *Client) TimelineBucket(ctx context.Context, timeBucket string) ([]Asset, error) {
	query := url.Values{}
	query.Set("timeBucket", timeBucket)
	query.Set("size", "MONTH")

	var assets []Asset
	if err := c.request(ctx, http.MethodGet, "/timeline/bucket", "timeline/bucket", query, nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// SearchMetadata fetches one page of the metadata search
func (c *Client) SearchMetadata(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	if req.Type == "" {
		req.Type = "IMAGE"
	}
	if req.Page < 1 {
		req.Page = 1
	}

	requestBody := map[string]interface{}{
		"query": req.Query,
		"clip":  false,
		"type":  req.Type,
		"size":  req.Size,
		"page":  req.Page,
	}

	var response struct {
		Assets struct {
			Items []Asset `json:"items"`
			Total int     `json:"total"`
		} `json:"assets"`
	}
	if err := c.request(ctx, http.MethodPost, "/search/metadata", "search/metadata", nil, requestBody, &response); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched search page",
		zap.Int("page", req.Page),
		zap.Int("items", len(response.Assets.Items)))

	return &SearchPage{
		Items:   response.Assets.Items,
		Total:   response.Assets.Total,
		HasMore: req.Size > 0 && len(response.Assets.Items) == req.Size,
	}, nil
}

// AssetDetails fetches the full record of one asset, including EXIF
func (c *Client) AssetDetails(ctx context.Context, id string) (*Asset, error) {
	var asset Asset
	if err := c.request(ctx, http.MethodGet, "/assets/"+url.PathEscape(id), "assets/{id}", nil, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// Albums lists album summaries
func (c *Client) Albums(ctx context.Context) ([]models.Album, error) {
	var albums []models.Album
	if err := c.request(ctx, http.MethodGet, "/albums", "albums", nil, nil, &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

// Forward sends an authenticated GET for an arbitrary API path (for
// example a thumbnail) and returns the raw response. The caller closes
// the body.
func (c *Client) Forward(ctx context.Context, path, rawQuery string) (*http.Response, error) {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return c.send(ctx, http.MethodGet, path, proxyLabel, query, nil)
}
