package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

// Options configures a JSON-over-HTTP service client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond limits outbound calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

type jsonClient struct {
	service string
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logrus.Entry
}

func newJSONClient(service string, opts Options) *jsonClient {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &jsonClient{
		service: service,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    hc,
		logger:  logger.WithField("service", service),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// do sends in as a JSON body (when non-nil) and decodes a 2xx response into
// out (when non-nil). Non-2xx responses become ClientErrors carrying the
// status code and a snippet of the body.
func (c *jsonClient) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.baseURL == "" {
		return newClientError(c.service, op, 0, nil, "service URL is not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return newClientError(c.service, op, 0, err, "rate limiter wait failed")
		}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return newClientError(c.service, op, 0, err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return newClientError(c.service, op, 0, err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return newClientError(c.service, op, 0, err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return newClientError(c.service, op, resp.StatusCode, err, "failed to read response")
	}

	c.logger.WithFields(logrus.Fields{
		"op":       op,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Upstream call finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newClientError(c.service, op, resp.StatusCode, nil, snippet(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newClientError(c.service, op, resp.StatusCode, err, "failed to decode response")
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "empty response"
	}
	if r := []rune(s); len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
