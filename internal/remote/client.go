// Package remote implements the HTTP/JSON client for the Katha story
// service. The reconciler and catalog layers only see it through the
// domain repository interfaces.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kathaverse/katha/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Katha/1.0"
	maxGetRetries  = 3
)

// Client implements domain.StoryRepository and domain.UserRepository
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to route GETs
// through the offline cache transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Katha service client
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken updates the session token
func (c *Client) SetToken(token string) {
	c.token = token
}

// doRequest performs an authenticated HTTP request. GET requests retry
// transient failures with exponential backoff; writes are attempted once.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	attempt := func() ([]byte, error) {
		return c.doOnce(ctx, method, path, query, payload)
	}
	if method != http.MethodGet {
		return attempt()
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxGetRetries),
		ctx,
	)
	var body []byte
	err := backoff.Retry(func() error {
		b, err := attempt()
		if err != nil {
			// Auth failures never heal on retry
			if errors.Is(err, domain.ErrAuthFailed) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}, policy)
	return body, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	reqURL := fmt.Sprintf("%s%s", c.baseURL, path)
	if query != nil {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("katha request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("katha request failed", "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrStoryNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("katha request error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return body, nil
}

// === Auth ===

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a session token
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/login", nil, loginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}
	return resp.Token, nil
}

// === domain.StoryRepository ===

type storyListResponse struct {
	Stories []domain.Story `json:"stories"`
	Total   int            `json:"total"`
}

// ListStories returns one catalog page for a language/audience pair
func (c *Client) ListStories(ctx context.Context, lang domain.Language, audience domain.Audience, offset, limit int) ([]domain.Story, int, error) {
	query := url.Values{}
	query.Set("language", string(lang))
	query.Set("audience", string(audience))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/stories", query, nil)
	if err != nil {
		return nil, 0, err
	}

	var resp storyListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to parse story list: %w", err)
	}
	return resp.Stories, resp.Total, nil
}

// GetStory returns a single story with full content
func (c *Client) GetStory(ctx context.Context, id domain.StoryID) (*domain.Story, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/stories/"+id.String(), nil, nil)
	if err != nil {
		return nil, err
	}
	var story domain.Story
	if err := json.Unmarshal(body, &story); err != nil {
		return nil, fmt.Errorf("failed to parse story: %w", err)
	}
	return &story, nil
}

// === domain.UserRepository ===

func (c *Client) GetUser(ctx context.Context) (*domain.UserRecord, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/user", nil, nil)
	if err != nil {
		return nil, err
	}
	var record domain.UserRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to parse user record: %w", err)
	}
	return &record, nil
}

func (c *Client) ReplaceUser(ctx context.Context, record *domain.UserRecord) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/api/v1/user", nil, record)
	return err
}

func (c *Client) GetFavorites(ctx context.Context) ([]domain.StoryID, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/favorites", nil, nil)
	if err != nil {
		return nil, err
	}
	var favorites []domain.StoryID
	if err := json.Unmarshal(body, &favorites); err != nil {
		return nil, fmt.Errorf("failed to parse favorites: %w", err)
	}
	return favorites, nil
}

func (c *Client) ToggleFavorite(ctx context.Context, id domain.StoryID) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/v1/user/favorites/"+id.String()+"/toggle", nil, nil)
	return err
}

func (c *Client) GetProfile(ctx context.Context) (*domain.Profile, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	var profile domain.Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) ReplaceProfile(ctx context.Context, profile *domain.Profile) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/api/v1/user/profile", nil, profile)
	return err
}

func (c *Client) ListDrafts(ctx context.Context) ([]domain.Draft, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/drafts", nil, nil)
	if err != nil {
		return nil, err
	}
	var drafts []domain.Draft
	if err := json.Unmarshal(body, &drafts); err != nil {
		return nil, fmt.Errorf("failed to parse drafts: %w", err)
	}
	return drafts, nil
}

func (c *Client) CreateDraft(ctx context.Context, draft domain.Draft) (*domain.Draft, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/user/drafts", nil, draft)
	if err != nil {
		return nil, err
	}
	var created domain.Draft
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created draft: %w", err)
	}
	return &created, nil
}
