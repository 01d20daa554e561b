// Package supabase talks to a hosted Supabase project: GoTrue for sessions
// and PostgREST for the tasks and profiles tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
)

type Options struct {
	URL     string
	AnonKey string
	// Tables maps gateway collection names to table names; unmapped
	// collections use their own name.
	Tables   map[string]string
	RetryMax int
	Logger   *zap.Logger
}

// Client holds project settings shared by the auth endpoints and sessions.
type Client struct {
	baseURL  string
	anonKey  string
	tables   map[string]string
	retryMax int
	http     *retryablehttp.Client
	log      *zap.Logger
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" || opts.AnonKey == "" {
		return nil, errors.New("supabase url and anon key are required (SUPABASE_URL, SUPABASE_ANON_KEY)")
	}
	c := &Client{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		anonKey:  opts.AnonKey,
		tables:   opts.Tables,
		retryMax: opts.RetryMax,
		log:      logging.OrNop(opts.Logger),
	}
	c.http = c.newHTTP(nil)
	return c, nil
}

// newHTTP builds a retrying client over base (nil means a pooled default).
// Only requests whose context is marked idempotent are retried.
func (c *Client) newHTTP(base *http.Client) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	}
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !gateway.Idempotent(ctx) {
			return false, nil
		}
		retry, cerr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		if retry {
			c.log.Debug("retrying gateway request", zap.Error(err))
		}
		return retry, cerr
	}
	return rc
}

func (c *Client) table(collection string) string {
	if t, ok := c.tables[collection]; ok && t != "" {
		return t
	}
	return collection
}

// do sends a JSON request and returns the response body of a 2xx reply.
func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, op, method, url string, body any, header http.Header) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bytesOrNil(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &apperr.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrAuthRequired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New(errorMessage(data))}
	}
	return data, nil
}

func bytesOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// errorMessage pulls the human text out of a PostgREST or GoTrue error body.
func errorMessage(body []byte) string {
	for _, path := range []string{"message", "msg", "error_description", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response"
}
