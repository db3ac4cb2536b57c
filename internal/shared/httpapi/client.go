package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"golang.org/x/net/publicsuffix"
)

// APIError is returned for every non-2xx backend response.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d) on %s %s: %s", e.Status, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("backend error (%d) on %s %s", e.Status, e.Method, e.Path)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsClientError reports whether the backend rejected the request (4xx).
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// SessionCookie is an optional pre-issued "name=value" session cookie.
	SessionCookie string
}

// Client is a thin JSON client for the restaurant REST API. Session
// credentials live in a cookie jar and ride along on every request. It never
// retries; callers refresh manually.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	if opts.SessionCookie != "" {
		name, value, ok := strings.Cut(opts.SessionCookie, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("session cookie must look like name=value")
		}
		jar.SetCookies(base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// Profile is the authenticated user as reported by the backend.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login posts credentials once; the session cookie the backend sets is kept
// in the jar for every later request and for the realtime handshake.
func (c *Client) Login(ctx context.Context, username, password string) (*Profile, error) {
	body := map[string]string{"username": username, "password": password}
	var profile Profile
	if err := c.Do(ctx, http.MethodPost, "/api/auth/login", nil, body, &profile); err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", username, err)
	}
	return &profile, nil
}

// Me returns the profile bound to the current session.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SessionHeader returns the Cookie header to present on the websocket handshake.
func (c *Client) SessionHeader() http.Header {
	h := http.Header{}
	cookies := c.httpClient.Jar.Cookies(c.baseURL)
	if len(cookies) == 0 {
		return h
	}
	parts := make([]string, len(cookies))
	for i, ck := range cookies {
		parts[i] = ck.Name + "=" + ck.Value
	}
	h.Set("Cookie", strings.Join(parts, "; "))
	return h
}

// Do sends one request. The context aborts the request; a response that
// arrives after cancellation is never decoded.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: errorMessage(respBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

// GetPage fetches one page of T. Invalid requests fail before any network call.
func GetPage[T any](ctx context.Context, c *Client, path string, req pagination.Request) (pagination.Page[T], error) {
	var page pagination.Page[T]
	if err := req.Validate(); err != nil {
		return page, err
	}
	if err := c.Do(ctx, http.MethodGet, path, req.Query(), nil, &page); err != nil {
		return pagination.Page[T]{}, err
	}
	return page, nil
}

const maxErrorMessage = 200

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		n := maxErrorMessage
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n]
	}
	return msg
}
