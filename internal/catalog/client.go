package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "ProductScout/1.0 (+https://github.com/david/product-scout)"

// APIError is a non-2xx answer from a platform API.
type APIError struct {
	Platform string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Platform, e.Status)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Platform, e.Status, e.Body)
}

// restClient sends JSON requests to one platform. Calls are not retried:
// a repeated create could publish the same product twice.
type restClient struct {
	platform  string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	authorize func(req *http.Request)
}

type Option func(*restClient)

func WithHTTPClient(c *http.Client) Option {
	return func(rc *restClient) { rc.client = c }
}

// WithBaseURL overrides the API origin, mainly for tests.
func WithBaseURL(u string) Option {
	return func(rc *restClient) { rc.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit sets requests per second; 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(rc *restClient) {
		if rps <= 0 {
			rc.limiter = nil
			return
		}
		rc.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func newRESTClient(platform, baseURL string, rps float64, authorize func(*http.Request), opts ...Option) *restClient {
	rc := &restClient{
		platform:  platform,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		authorize: authorize,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil).
func (rc *restClient) do(ctx context.Context, method, path string, in, out any) error {
	if rc.limiter != nil {
		if err := rc.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", rc.platform, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rc.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rc.authorize != nil {
		rc.authorize(req)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", rc.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Platform: rc.platform, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", rc.platform, err)
	}
	return nil
}
