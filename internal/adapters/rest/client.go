// Package rest implements secondary.CollectionClient over the backend's
// JSON endpoints.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/example/pm/internal/ctxutil"
	"github.com/example/pm/internal/errs"
	"github.com/example/pm/internal/logging"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/ports/secondary"
)

const maxBodyBytes = 4 << 20

// RetryPolicy bounds retries of idempotent calls (list, update, delete).
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	Retry          RetryPolicy
	HTTPClient     *http.Client
	Metrics        *Metrics
}

// Client is the HTTP CollectionClient.
type Client struct {
	baseURL  string
	headers  map[string]string
	http     *http.Client
	retry    RetryPolicy
	sessions secondary.SessionProvider
	metrics  *Metrics
}

var _ secondary.CollectionClient = (*Client)(nil)

// NewClient creates a client that authenticates every request with the
// token of the current session.
func NewClient(sessions secondary.SessionProvider, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		headers:  opts.DefaultHeaders,
		http:     hc,
		retry:    opts.Retry,
		sessions: sessions,
		metrics:  opts.Metrics,
	}
}

// List fetches the whole collection.
func (c *Client) List(ctx context.Context, schema *models.Schema) ([]models.Record, error) {
	data, err := c.do(ctx, schema, "get", http.MethodGet, "get", nil, true)
	if err != nil {
		return nil, err
	}

	var out []models.Record
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, &errs.RemoteError{Op: op(schema, "get"), Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	if out == nil {
		out = []models.Record{}
	}
	return out, nil
}

// Create posts a new record. It is never retried: a lost response may
// still have created the record.
func (c *Client) Create(ctx context.Context, schema *models.Schema, payload models.Record) (models.Record, error) {
	data, err := c.do(ctx, schema, "create", http.MethodPost, "create", payload, false)
	if err != nil {
		return nil, err
	}
	return decodeRecord(schema, "create", data)
}

// Update replaces the record with the given id.
func (c *Client) Update(ctx context.Context, schema *models.Schema, id string, payload models.Record) (models.Record, error) {
	data, err := c.do(ctx, schema, "update", http.MethodPut, "update/"+url.PathEscape(id), payload, true)
	if err != nil {
		return nil, err
	}
	return decodeRecord(schema, "update", data)
}

// Delete removes the record with the given id.
func (c *Client) Delete(ctx context.Context, schema *models.Schema, id string) error {
	_, err := c.do(ctx, schema, "delete", http.MethodDelete, "delete/"+url.PathEscape(id), nil, true)
	return err
}

func op(schema *models.Schema, action string) string {
	return strings.ToLower(schema.Name) + " " + action
}

// decodeRecord reads the stored record from a response. Some endpoints
// answer 204 or 200 with no body; that yields an empty record.
func decodeRecord(schema *models.Schema, action string, data []byte) (models.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Record{}, nil
	}
	var out models.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &errs.RemoteError{Op: op(schema, action), Err: fmt.Errorf("decode response: %w", err)}
	}
	if out == nil {
		out = models.Record{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, schema *models.Schema, action, method, path string, body any, idempotent bool) ([]byte, error) {
	opName := op(schema, action)

	sess, err := c.sessions.Current(ctx)
	if err != nil {
		return nil, &errs.AuthError{Op: opName, Err: err}
	}
	ctx, reqID := ctxutil.EnsureRequestID(ctx)
	if ctxutil.ActorFromContext(ctx) == "" && sess.UserName != "" {
		ctx = ctxutil.WithActor(ctx, sess.UserName)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", opName, err)
		}
	}
	target := c.baseURL + "/api/" + schema.Resource + "/" + path

	attempt := 0
	call := func() ([]byte, error) {
		attempt++
		return c.attempt(ctx, schema.Resource, action, opName, method, target, payload, sess.Token, reqID, attempt)
	}

	var data []byte
	if idempotent && c.retry.MaxAttempts > 1 {
		eb := backoff.NewExponentialBackOff()
		if c.retry.InitialBackoff > 0 {
			eb.InitialInterval = c.retry.InitialBackoff
		}
		if c.retry.MaxBackoff > 0 {
			eb.MaxInterval = c.retry.MaxBackoff
		}
		data, err = backoff.Retry(ctx, call,
			backoff.WithBackOff(eb),
			backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		)
	} else {
		data, err = call()
	}
	if err != nil {
		return nil, classify(opName, err)
	}
	return data, nil
}

// classify strips retry wrappers and guarantees a taxonomy error.
func classify(opName string, err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	var ae *errs.AuthError
	if errors.As(err, &ae) {
		return ae
	}
	var re *errs.RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &errs.RemoteError{Op: opName, Err: err}
}

func (c *Client) attempt(ctx context.Context, resource, action, opName, method, target string, payload []byte, token, reqID string, n int) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(&errs.RemoteError{Op: opName, Err: err})
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("attempt", n),
		zap.Duration("latency", latency),
	}
	if err != nil {
		c.metrics.observe(resource, action, "error", latency)
		logging.Warn(ctx, "rest_request", append(fields, zap.Error(err))...)
		re := &errs.RemoteError{Op: opName, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(re)
		}
		return nil, re
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.observe(resource, action, strconv.Itoa(resp.StatusCode), latency)
	fields = append(fields, zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		logging.Warn(ctx, "rest_request", fields...)
		return nil, backoff.Permanent(&errs.AuthError{Op: opName, Err: fmt.Errorf("server returned %d", resp.StatusCode)})
	case resp.StatusCode >= http.StatusInternalServerError:
		logging.Warn(ctx, "rest_request", fields...)
		return nil, &errs.RemoteError{Op: opName, Status: resp.StatusCode, Body: snippet(data)}
	case resp.StatusCode >= http.StatusBadRequest:
		logging.Warn(ctx, "rest_request", fields...)
		return nil, backoff.Permanent(&errs.RemoteError{Op: opName, Status: resp.StatusCode, Body: snippet(data)})
	}

	if readErr != nil {
		logging.Warn(ctx, "rest_request", append(fields, zap.Error(readErr))...)
		// A truncated body leaves the outcome unknown, like a transport failure.
		return nil, &errs.RemoteError{Op: opName, Err: readErr}
	}
	logging.Info(ctx, "rest_request", fields...)
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
