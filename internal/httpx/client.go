package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/version"
)

// ErrNotFound is returned (wrapped) when the service answers 404.
var ErrNotFound = errors.New("resource not found")

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.UserAgent(),
	}
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 120 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	exp.RandomizationFactor = 0.3
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retries)), ctx)
}

// DoJSON sends req and decodes a 2xx JSON body into out. Rate limiting,
// 5xx and transport failures are retried; other statuses fail immediately.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var header http.Header
	attempt := func() error {
		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(clierr.Wrap(clierr.CodeInternal, "clone request body", err))
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			return mapNetError(err)
		}
		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		header = resp.Header
		if readErr != nil {
			return backoff.Permanent(clierr.Wrap(clierr.CodeUnavailable, "read service response", readErr))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return clierr.New(clierr.CodeRateLimited, "service rate limited request")
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(clierr.New(clierr.CodeAuth, "service authentication failed"))
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("%s %s", req.Method, req.URL.Path), ErrNotFound))
		case resp.StatusCode >= http.StatusInternalServerError:
			return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("service unavailable (status %d)", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(clierr.New(clierr.CodeUnsupported, fmt.Sprintf("service returned unexpected status %d%s", resp.StatusCode, bodySnippet(buf))))
		}

		if out == nil {
			return nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return backoff.Permanent(clierr.New(clierr.CodeUnavailable, "service returned empty response"))
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return backoff.Permanent(clierr.Wrap(clierr.CodeUnavailable, "decode service JSON", err))
		}
		return nil
	}

	err := backoff.Retry(attempt, c.retryPolicy(ctx))
	if err != nil {
		if ctx.Err() != nil && !isTyped(err) {
			return header, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
		}
		return header, err
	}
	return header, nil
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// IsNotFound reports whether err came from a 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "service timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "service request failed", err)
}

func isTyped(err error) bool {
	_, ok := clierr.As(err)
	return ok
}

func bodySnippet(buf []byte) string {
	s := strings.TrimSpace(string(buf))
	if s == "" {
		return ""
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return ": " + s
}
