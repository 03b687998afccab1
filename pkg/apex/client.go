package apex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Invoker calls one generated endpoint wrapper with a JSON encoded payload.
type Invoker func(ctx context.Context, c *Client, raw json.RawMessage) (any, error)

// HTTPError is returned for responses with a status of 400 or above.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("apex: %s", e.Status)
	}
	return fmt.Sprintf("apex: %s: %s", e.Status, msg)
}

// Client sends requests on behalf of generated wrappers.
type Client struct {
	// BaseURL is prepended to relative request paths
	BaseURL string
	HTTP    *http.Client
	// Header is added to every request
	Header http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTP = hc }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.Header.Add(key, value) }
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one request. query is nil, url.Values or any value encodable as
// a JSON object, whose fields become query parameters. body, when non-nil,
// is sent as JSON. The JSON response is decoded into out unless out is nil.
func (c *Client) Do(ctx context.Context, method, path string, query any, body any, out any) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}

	params, err := Query(query)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		if target.RawQuery != "" {
			target.RawQuery += "&"
		}
		target.RawQuery += params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apex: encoding body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("apex: building request: %w", err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("apex: %s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apex: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("apex: decoding response: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) (*url.URL, error) {
	if strings.Contains(path, "://") {
		return url.Parse(path)
	}
	u, err := url.Parse(c.BaseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("apex: invalid url: %w", err)
	}
	return u, nil
}
