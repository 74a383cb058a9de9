package webapi

// client.go - HTTP client for the workspace service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client drives a workspace service remotely. Methods mirror the manager
// operations the service exposes.
type Client struct {
	baseURL string
	http    *http.Client
}

// RemoteError is an error envelope returned by the service.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Type
}

// NewClient creates a client for the service at addr, a host:port pair or a
// full URL. A non-positive timeout falls back to two minutes, generous
// because set and write requests evaluate resources server-side.
func NewClient(addr string, timeout time.Duration) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// IsRunning reports whether a workspace service answers at the address. An
// error envelope still counts as running; only transport failures do not.
func (c *Client) IsRunning(ctx context.Context) bool {
	_, err := c.call(ctx, http.MethodGet, "/", nil, nil)
	if err == nil {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re)
}

// Init creates a workspace at base on the service host.
func (c *Client) Init(ctx context.Context, base, description string) (json.RawMessage, error) {
	q := url.Values{"base_dir": {base}}
	if description != "" {
		q.Set("description", description)
	}
	return c.call(ctx, http.MethodGet, "/ws/init", q, nil)
}

// Get fetches the workspace document at base, opening it remotely if needed.
func (c *Client) Get(ctx context.Context, base string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, "/ws/get/"+url.PathEscape(base), nil, nil)
}

// Delete removes the workspace state at base.
func (c *Client) Delete(ctx context.Context, base string) error {
	_, err := c.call(ctx, http.MethodGet, "/ws/del/"+url.PathEscape(base), nil, nil)
	return err
}

// Clean drops cached values at base and persists the result.
func (c *Client) Clean(ctx context.Context, base string) error {
	_, err := c.call(ctx, http.MethodGet, "/ws/clean/"+url.PathEscape(base), nil, nil)
	return err
}

// SetResource binds res in the workspace at base. The reserved opName
// "source" opens a catalog dataset, with the ref as the only token; any
// other opName binds a step with param=value and param=@resource tokens.
func (c *Client) SetResource(ctx context.Context, base, res, opName string, tokens []string) error {
	args, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	form := url.Values{
		"op_name": {opName},
		"op_args": {string(args)},
	}
	path := "/ws/res/set/" + url.PathEscape(base) + "/" + url.PathEscape(res)
	_, err = c.call(ctx, http.MethodPost, path, nil, form)
	return err
}

// WriteResource evaluates res and writes it to filePath on the service
// host. An empty format picks by file extension.
func (c *Client) WriteResource(ctx context.Context, base, res, filePath, format string) error {
	form := url.Values{"file_path": {filePath}}
	if format != "" {
		form.Set("format_name", format)
	}
	path := "/ws/res/write/" + url.PathEscape(base) + "/" + url.PathEscape(res)
	_, err := c.call(ctx, http.MethodPost, path, nil, form)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, query, form url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Status  string          `json:"status"`
		Content json.RawMessage `json:"content"`
		Error   *errorBody      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding service response: %w", err)
	}
	if env.Status != "ok" {
		re := &RemoteError{}
		if env.Error != nil {
			re.Type = env.Error.Type
			re.Message = env.Error.Message
		}
		return nil, re
	}
	return env.Content, nil
}
