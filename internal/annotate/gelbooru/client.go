// Package gelbooru resolves Gelbooru post IDs into tag lists.
package gelbooru

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"saucetag/internal/annotate"
)

const (
	defaultBaseURL     = "https://gelbooru.com"
	defaultHTTPTimeout = 30 * time.Second
	serviceName        = "gelbooru"
)

// Config describes the Gelbooru client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	UserID  string
	// RequestsPerSecond throttles outgoing requests. Zero or negative
	// disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client looks up post tags through the Gelbooru DAPI.
type Client struct {
	baseURL *url.URL
	apiKey  string
	userID  string
	limiter *rate.Limiter
	http    *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("gelbooru: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		userID:  strings.TrimSpace(cfg.UserID),
		limiter: rate.NewLimiter(limit, 1),
		http:    client,
	}, nil
}

type post struct {
	ID   int    `json:"id"`
	Tags string `json:"tags"`
}

type envelope struct {
	Post []post `json:"post"`
}

// PostTags returns the tags of post id. A post that is missing from the
// response is reported as an invalid response rather than a missing file.
func (c *Client) PostTags(ctx context.Context, id int) ([]string, error) {
	if c == nil {
		return nil, errors.New("gelbooru: client is nil")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, annotate.Wrap(annotate.ErrNetwork, serviceName, "throttle", "", err)
	}

	endpoint := c.baseURL.JoinPath("index.php")
	params := url.Values{}
	params.Set("page", "dapi")
	params.Set("s", "post")
	params.Set("q", "index")
	params.Set("json", "1")
	params.Set("id", strconv.Itoa(id))
	if c.apiKey != "" && c.userID != "" {
		params.Set("api_key", c.apiKey)
		params.Set("user_id", c.userID)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gelbooru: build post request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, annotate.Wrap(annotate.ErrNetwork, serviceName, "post", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("post %d (%s): %s", id, resp.Status, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, annotate.Wrap(annotate.ErrRateLimited, serviceName, "post", detail, nil)
		case resp.StatusCode >= 500:
			return nil, annotate.Wrap(annotate.ErrNetwork, serviceName, "post", detail, nil)
		default:
			return nil, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "post", detail, nil)
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, annotate.Wrap(annotate.ErrNetwork, serviceName, "post", "read body", err)
	}
	posts, err := decodePosts(data)
	if err != nil {
		return nil, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "post", "decode response", err)
	}
	for _, p := range posts {
		if p.ID == id || len(posts) == 1 {
			return SplitTags(p.Tags), nil
		}
	}
	return nil, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "post", fmt.Sprintf("post %d not in response", id), nil)
}

// decodePosts accepts both the {"post":[...]} envelope and a bare array.
func decodePosts(data []byte) ([]post, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var posts []post
		if err := json.Unmarshal(data, &posts); err != nil {
			return nil, err
		}
		return posts, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Post, nil
}

// SplitTags splits a space-separated tag string, unescaping HTML entities.
func SplitTags(raw string) []string {
	fields := strings.Fields(html.UnescapeString(raw))
	if len(fields) == 0 {
		return nil
	}
	return fields
}
