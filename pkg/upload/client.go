// Package upload pushes build packages to an object-storage style HTTP
// endpoint: one PUT per object, authenticated with a bearer token.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: http.DefaultClient,
	}
}

// Manifest lists the paths an uploaded package changes, so the receiving
// side can apply deletions the archive cannot express.
type Manifest struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Deleted []string `json:"deleted"`
}

func (c *Client) objectURL(key string) string {
	segs := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return c.BaseURL + "/" + strings.Join(segs, "/")
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set(
			"Authorization", "Bearer "+c.Token,
		)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return resp, nil
}

// APIError is returned for any response with status >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf(
			"upload %d (%s): %s",
			e.StatusCode, e.Code, e.Message,
		)
	}
	return fmt.Sprintf("upload %d: %s", e.StatusCode, e.Message)
}

func parseAPIError(status int, body []byte) error {
	var parsed struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return &APIError{
			StatusCode: status,
			Message:    parsed.Error,
			Code:       parsed.Code,
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// PutObject stores body under key.
func (c *Client) PutObject(
	ctx context.Context,
	key, contentType string,
	body io.Reader,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPut, c.objectURL(key), body,
	)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	resp.Body.Close()
	slog.Debug("uploaded", "key", key, "status", resp.StatusCode)
	return nil
}

// PutFile uploads the file at path under key.
func (c *Client) PutFile(
	ctx context.Context,
	key, contentType, path string,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.PutObject(ctx, key, contentType, f)
}

func (c *Client) PutManifest(
	ctx context.Context,
	key string,
	m Manifest,
) error {
	if m.Added == nil {
		m.Added = []string{}
	}
	if m.Updated == nil {
		m.Updated = []string{}
	}
	if m.Deleted == nil {
		m.Deleted = []string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return c.PutObject(
		ctx, key, "application/json", bytes.NewReader(data),
	)
}

// Key joins an optional prefix and a name into an object key.
func Key(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
