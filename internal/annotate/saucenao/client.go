// Package saucenao implements annotate.Annotator on top of the SauceNAO
// reverse image search API.
package saucenao

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"saucetag/internal/annotate"
	"saucetag/internal/quota"
)

const (
	defaultBaseURL     = "https://saucenao.com"
	defaultHTTPTimeout = 60 * time.Second
	defaultDBIndex     = 25
	serviceName        = "saucenao"
)

// Remote status codes reported in the response header.
const (
	statusLimitExceeded = -2
	statusInvalidImage  = -4
	statusFileTooLarge  = -5
)

// Config describes the SauceNAO client configuration.
type Config struct {
	APIKey              string
	BaseURL             string
	DBIndex             int
	SimilarityThreshold float64
	Timeout             time.Duration
	HTTPClient          *http.Client
	// Tags resolves the matched post's tags. Required.
	Tags annotate.TagSource
}

// Client searches SauceNAO for an image and resolves the best match's tags.
type Client struct {
	apiKey    string
	baseURL   *url.URL
	dbIndex   int
	threshold float64
	tags      annotate.TagSource
	http      *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("saucenao: api key is required")
	}
	if cfg.Tags == nil {
		return nil, errors.New("saucenao: tag source is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("saucenao: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	dbIndex := cfg.DBIndex
	if dbIndex <= 0 {
		dbIndex = defaultDBIndex
	}
	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		dbIndex:   dbIndex,
		threshold: cfg.SimilarityThreshold,
		tags:      cfg.Tags,
		http:      client,
	}, nil
}

// Match is the best search hit.
type Match struct {
	Similarity float64
	GelbooruID int
	URLs       []string
}

// Annotate uploads the image at path, picks the best match, and returns its
// tags. A match at or below the similarity threshold yields LowConfidence.
func (c *Client) Annotate(ctx context.Context, path string) (annotate.Result, error) {
	if c == nil {
		return annotate.Result{}, errors.New("saucenao: client is nil")
	}
	match, q, err := c.Search(ctx, path)
	result := annotate.Result{Quota: q}
	if err != nil {
		return result, err
	}
	if match == nil {
		result.LowConfidence = true
		return result, nil
	}
	result.Similarity = match.Similarity
	if match.Similarity <= c.threshold || match.GelbooruID <= 0 {
		result.LowConfidence = true
		return result, nil
	}

	tags, err := c.tags.PostTags(ctx, match.GelbooruID)
	if err != nil {
		return result, err
	}
	result.Tags = tags
	if len(match.URLs) > 0 {
		result.Source = match.URLs[0]
	}
	return result, nil
}

// Search uploads the image and returns the first result together with the
// quota reported in the response header. A nil match means no results.
func (c *Client) Search(ctx context.Context, path string) (*Match, *quota.State, error) {
	body, contentType, err := encodeUpload(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, annotate.Wrap(annotate.ErrNotFound, serviceName, "open", filepath.Base(path), err)
		}
		return nil, nil, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "read image", filepath.Base(path), err)
	}

	endpoint := c.baseURL.JoinPath("search.php")
	params := url.Values{}
	params.Set("output_type", "2")
	params.Set("numres", "1")
	params.Set("db", strconv.Itoa(c.dbIndex))
	params.Set("api_key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("saucenao: build search request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, annotate.Wrap(annotate.ErrNetwork, serviceName, "search", "request failed", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, nil, err
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", "decode response", err)
	}

	q := payload.Header.quota()
	switch status := int(payload.Header.Status); {
	case status == statusLimitExceeded:
		return nil, q, annotate.Wrap(annotate.ErrRateLimited, serviceName, "search", payload.Header.message("search limit exceeded"), nil)
	case status == statusInvalidImage, status == statusFileTooLarge:
		return nil, q, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", payload.Header.message(fmt.Sprintf("image rejected (status %d)", status)), nil)
	case status > 0:
		return nil, q, annotate.Wrap(annotate.ErrNetwork, serviceName, "search", payload.Header.message(fmt.Sprintf("server-side failure (status %d)", status)), nil)
	case status < 0:
		return nil, q, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", payload.Header.message(fmt.Sprintf("client-side failure (status %d)", status)), nil)
	}

	if len(payload.Results) == 0 {
		return nil, q, nil
	}
	first := payload.Results[0]
	similarity, err := strconv.ParseFloat(strings.TrimSpace(string(first.Header.Similarity)), 64)
	if err != nil {
		return nil, q, annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", "parse similarity", err)
	}
	return &Match{
		Similarity: similarity,
		GelbooruID: int(first.Data.GelbooruID),
		URLs:       first.Data.ExtURLs,
	}, q, nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return annotate.Wrap(annotate.ErrRateLimited, serviceName, "search", detail, nil)
	case resp.StatusCode == http.StatusForbidden:
		return annotate.Wrap(annotate.ErrRateLimited, serviceName, "search", "forbidden (check api_key): "+detail, nil)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", detail, nil)
	case resp.StatusCode >= 500:
		return annotate.Wrap(annotate.ErrNetwork, serviceName, "search", detail, nil)
	default:
		return annotate.Wrap(annotate.ErrInvalidResponse, serviceName, "search", detail, nil)
	}
}

func encodeUpload(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
