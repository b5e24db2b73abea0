// Package gateway issues authenticated calls to the study backend and
// classifies every failure into the app_errors taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// maxErrorBody caps how much of an error response is read for message extraction.
const maxErrorBody = 64 << 10

// TokenStore supplies and revokes the bearer credential.
type TokenStore interface {
	Token() (string, error)
	ClearToken() error
}

// SessionListener is told when the credential is missing or rejected.
// err matches app_errors.ErrUnauthenticated, and ErrSessionExpired on 401.
type SessionListener func(err error)

// File is a multipart upload body. The gateway writes it as form field
// Field with the given file name.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Payload is a successful response body.
type Payload struct {
	Status int
	Body   json.RawMessage
}

// Empty reports whether the response carried no body (e.g. HTTP 204).
func (p Payload) Empty() bool {
	return len(bytes.TrimSpace(p.Body)) == 0
}

// Decode unmarshals the body into v. An empty payload leaves v untouched.
func (p Payload) Decode(v any) error {
	if p.Empty() {
		return nil
	}
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Client is the RequestGateway.
type Client struct {
	baseURL    string
	tokens     TokenStore
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	listeners []SessionListener
}

// New creates a Client for baseURL. timeout bounds each request; zero means none.
func New(baseURL string, tokens TokenStore, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// OnSessionEnd registers a listener for forced logout.
func (c *Client) OnSessionEnd(fn SessionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) endSession(err error) {
	c.mu.Lock()
	listeners := append([]SessionListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Call performs method on path with an optional body and returns the payload.
//
// body may be nil, a File (multipart), an io.Reader (raw bytes, sent without
// a content type) or any JSON-marshalable value.
func (c *Client) Call(ctx context.Context, method, path string, body any) (Payload, error) {
	token, err := c.tokens.Token()
	if err == nil && token == "" {
		err = errors.New("empty token")
	}
	if err != nil {
		c.endSession(app_errors.ErrUnauthenticated)
		return Payload{}, fmt.Errorf("%w: %v", app_errors.ErrUnauthenticated, err)
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Payload{}, fmt.Errorf("creating request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return Payload{}, fmt.Errorf("%w: %v", app_errors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if err := c.tokens.ClearToken(); err != nil {
			c.logger.Warn("clearing expired credential", "error", err)
		}
		c.endSession(app_errors.ErrSessionExpired)
		return Payload{}, app_errors.ErrSessionExpired
	case resp.StatusCode == http.StatusNoContent:
		return Payload{Status: resp.StatusCode}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Payload{}, &app_errors.APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, resp.Header.Get("Content-Type"), data),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: reading response: %v", app_errors.ErrNetwork, err)
	}
	return Payload{Status: resp.StatusCode, Body: data}, nil
}

// CallJSON is Call followed by Decode into out (which may be nil).
func (c *Client) CallJSON(ctx context.Context, method, path string, body, out any) error {
	p, err := c.Call(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return p.Decode(out)
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case File:
		return encodeMultipart(b)
	case *File:
		return encodeMultipart(*b)
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("marshalling request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func encodeMultipart(f File) (io.Reader, string, error) {
	field := f.Field
	if field == "" {
		field = "file"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, f.Name)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, "", fmt.Errorf("reading upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// IsAPIError reports whether err is a backend error response and returns it.
func IsAPIError(err error) (*app_errors.APIError, bool) {
	var apiErr *app_errors.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
