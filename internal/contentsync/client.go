package contentsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RemoteClient is the content store as seen by a Session. Reads return the
// raw response body; the session unwraps envelopes and string payloads.
type RemoteClient interface {
	GetSection(ctx context.Context, section string) (json.RawMessage, error)
	PutSection(ctx context.Context, section string, doc any) error
	CreateSection(ctx context.Context, section string, doc any) error
	ListTestimonials(ctx context.Context) (json.RawMessage, error)
	CreateTestimonial(ctx context.Context, item any) (json.RawMessage, error)
	UpdateTestimonial(ctx context.Context, id string, item any) (json.RawMessage, error)
	DeleteTestimonial(ctx context.Context, id string) error
}

// EventSource is implemented by clients that can push change notifications.
type EventSource interface {
	Subscribe(ctx context.Context, fn func(SectionEvent)) error
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *HTTPClient) GetSection(ctx context.Context, section string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, sectionPath(section), nil, &out)
	return out, err
}

func (c *HTTPClient) PutSection(ctx context.Context, section string, doc any) error {
	return c.doJSON(ctx, http.MethodPut, sectionPath(section), map[string]any{"content": doc}, nil)
}

func (c *HTTPClient) CreateSection(ctx context.Context, section string, doc any) error {
	return c.doJSON(ctx, http.MethodPost, sectionPath(section), map[string]any{"content": doc}, nil)
}

func (c *HTTPClient) ListTestimonials(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, "/homepage/testimonials", nil, &out)
	return out, err
}

func (c *HTTPClient) CreateTestimonial(ctx context.Context, item any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, "/homepage/testimonials", item, &out)
	return out, err
}

func (c *HTTPClient) UpdateTestimonial(ctx context.Context, id string, item any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodPut, "/homepage/testimonials/"+url.PathEscape(id), item, &out)
	return out, err
}

func (c *HTTPClient) DeleteTestimonial(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/homepage/testimonials/"+url.PathEscape(id), nil, nil)
}

func sectionPath(section string) string {
	return "/homepage/" + url.PathEscape(strings.TrimSpace(section))
}

func (c *HTTPClient) doJSON(
	ctx context.Context,
	method, requestPath string,
	body any,
	out *json.RawMessage,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-Id", correlationID())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out != nil {
				*out = append((*out)[:0], payloadBytes...)
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		if errPayload.Message == "" {
			errPayload.Message = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func correlationID() string {
	return fmt.Sprintf("homepage_%d", time.Now().UnixNano())
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
