package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/internal/reqid"
)

const (
	defaultTimeout = 10 * time.Second
	defaultLimit   = 10
	maxLimit       = 100
	maxBodySize    = 10 << 20
)

// Client talks to the klub REST backend. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	token   string
	client  *http.Client
}

func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: u,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type call struct {
	method string
	path   []string
	query  url.Values
	body   any
}

func (c *Client) endpoint(path []string, query url.Values) string {
	u := c.baseURL.JoinPath(path...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs the call and decodes the "data" member of the response envelope into T.
// An envelope with success=false is returned as *APIError.
func do[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var zero T

	b, err := c.send(ctx, cl)
	if err != nil || len(b) == 0 {
		return zero, err
	}

	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return zero, fmt.Errorf("error decoding response from %s: %w", c.endpoint(cl.path, cl.query), err)
	}
	if env.Success != nil && !*env.Success {
		return zero, &APIError{StatusCode: http.StatusOK, Message: env.Message}
	}

	return env.Data, nil
}

// send performs the call and returns the body of a 2xx response, trimmed.
// Other statuses become *APIError carrying the envelope message.
func (c *Client) send(ctx context.Context, cl call) ([]byte, error) {
	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.endpoint(cl.path, cl.query)
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request %s %s: %w", cl.method, target, err)
	}

	reqID, err := reqid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request ID: %w", err)
	}
	sID := reqid.Short(reqID)

	req.Header.Set(reqid.Header, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[rest][%s] %s %s failed: %v", sID, cl.method, target, err)
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	log.Debugf("[rest][%s] %s %s -> %d in %v", sID, cl.method, target, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env envelope[json.RawMessage]
		if json.Unmarshal(b, &env) == nil {
			apiErr.Message = env.Message
		}
		log.Warnf("[rest][%s] %s %s returned status %d: %s", sID, cl.method, target, resp.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	return bytes.TrimSpace(b), nil
}

func pageQuery(page, limit int) url.Values {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}
