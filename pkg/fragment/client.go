// Package fragment fetches HTML page fragments and reports failed requests to observers.
package fragment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Client provides an HTTP client for page fragments
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL

	mu        sync.RWMutex
	observers []Observer
}

// NewClient creates a new fragment client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid BaseURL: scheme must be http or https")
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// BaseURL returns the configured origin
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// AddObserver registers o for failure notifications
func (c *Client) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Get fetches the fragment at path
func (c *Client) Get(ctx context.Context, path string) (*Fragment, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post submits form to path and returns the fragment the server answers with
func (c *Client) Post(ctx context.Context, path string, form url.Values) (*Fragment, error) {
	return c.do(ctx, http.MethodPost, path, form)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*Fragment, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	fullURL := c.baseURL.ResolveReference(ref).String()

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("HX-Request", "true")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sendErr := &SendError{Method: method, URL: fullURL, Err: err}
		c.notifySendError(sendErr)
		return nil, sendErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		sendErr := &SendError{Method: method, URL: fullURL, Err: fmt.Errorf("failed to read response body: %w", err)}
		c.notifySendError(sendErr)
		return nil, sendErr
	}

	if resp.StatusCode >= 400 {
		respErr := newResponseError(method, fullURL, resp.StatusCode, body)
		c.notifyResponseError(respErr)
		return nil, respErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	return &Fragment{
		URL:         fullURL,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Doc:         doc,
	}, nil
}

func (c *Client) snapshot() []Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

func (c *Client) notifyResponseError(err *ResponseError) {
	for _, o := range c.snapshot() {
		o.OnResponseError(err)
	}
}

func (c *Client) notifySendError(err *SendError) {
	for _, o := range c.snapshot() {
		o.OnSendError(err)
	}
}
