package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guseggert/osinthub/service"
	"github.com/guseggert/osinthub/stream"
	"github.com/guseggert/osinthub/tool"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrRejected is returned when the hub refuses to start a scan.
var ErrRejected = errors.New("scan rejected")

// Client talks to a running hub.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client

	baseURL                  string
	customizeRetryableClient func(*retryablehttp.Client)
	streamClient             *stream.Client

	waitInterval time.Duration
}

type ClientOption func(c *Client)

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// NewClient builds a client for the hub at baseURL, e.g. "http://127.0.0.1:3001".
func NewClient(log *zap.SugaredLogger, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		Logger:       log.Named("hub_client"),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		waitInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 3
	// Control and scan responses carry their own error payloads.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode < http.StatusInternalServerError {
			return false, nil
		}
		if resp != nil && resp.Request != nil && resp.Request.Method != http.MethodGet {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	c.HTTPClient = retryClient.StandardClient()
	c.streamClient = &stream.Client{
		HTTPClient: c.HTTPClient,
		URL:        c.baseURL + "/api/cli/ws",
		Logger:     c.Logger.Named("stream_client"),
	}
	return c
}

func (c *Client) prepReq(r *http.Request) {
	r.Header.Add("Content-Type", "application/json")
}

func errorFromResponse(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("HTTP status %d, error reading body: %w", resp.StatusCode, err)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("HTTP status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("HTTP status %d: %s", resp.StatusCode, string(b))
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.prepReq(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	err = json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Tools lists every configured tool.
func (c *Client) Tools(ctx context.Context) ([]tool.Descriptor, error) {
	var descs []tool.Descriptor
	err := c.getJSON(ctx, "/api/tools", &descs)
	return descs, err
}

// Status reports the state of every service tool.
func (c *Client) Status(ctx context.Context) ([]service.Status, error) {
	var statuses []service.Status
	err := c.getJSON(ctx, "/api/status", &statuses)
	return statuses, err
}

// Control starts or stops a service tool and returns its resulting state.
func (c *Client) Control(ctx context.Context, id string, action Action) (service.State, error) {
	b, err := json.Marshal(ControlRequest{ID: id, Action: action})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/control", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.prepReq(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp)
	}
	var controlResp ControlResponse
	err = json.NewDecoder(resp.Body).Decode(&controlResp)
	if err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return controlResp.Status, nil
}

// Run streams a scan over Server-Sent Events, calling fn for each event.
// Cancelling ctx disconnects, which kills the scan on the hub.
func (c *Client) Run(ctx context.Context, id, arg string, fn func(stream.Event) error) error {
	q := url.Values{}
	q.Set("tool", id)
	q.Set("args", arg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/cli?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return stream.ReadSSE(resp.Body, fn)
	case http.StatusBadRequest:
		var texts []string
		err := stream.ReadSSE(resp.Body, func(ev stream.Event) error {
			texts = append(texts, ev.Text)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: reading rejection: %s", ErrRejected, err)
		}
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(texts, ""))
	default:
		return errorFromResponse(resp)
	}
}

// RunWS streams a scan over a WebSocket, calling fn for each event.
func (c *Client) RunWS(ctx context.Context, id, arg string, fn func(stream.Event) error) error {
	return c.streamClient.Run(ctx, id, arg, fn)
}

// WaitForServer polls the hub until it answers or ctx is done.
func (c *Client) WaitForServer(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := c.Status(ctx)
			if err == nil {
				c.Logger.Debug("status succeeded, done waiting for server")
				return nil
			}
			c.Logger.Debugf("got status error: %s", err)
		}
	}
}
