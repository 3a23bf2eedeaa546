// Package client is the HTTP client workers use to talk to the master's
// REST API.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"sfs/forecast-engine/api/rest"
	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/types"
)

const defaultTimeout = 30 * time.Second

var (
	globalClient     *fasthttp.Client
	globalClientOnce sync.Once
)

func sharedClient() *fasthttp.Client {
	globalClientOnce.Do(func() {
		globalClient = &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         defaultTimeout,
			WriteTimeout:        defaultTimeout,
		}
	})
	return globalClient
}

// Client talks to a master node over its REST API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *fasthttp.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey authenticates requests with an API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client for the master at baseURL (e.g. "http://host:8066").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		client:  sharedClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register announces a worker to the master.
func (c *Client) Register(ctx context.Context, req *rest.WorkerRegisterRequest) (*rest.WorkerRegisterResponse, error) {
	var resp rest.WorkerRegisterResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/v1/workers/register", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Accepted {
		return nil, fmt.Errorf("registration rejected: %s", resp.Error)
	}
	return &resp, nil
}

// Heartbeat refreshes the worker's liveness and returns pending control
// commands.
func (c *Client) Heartbeat(ctx context.Context, workerID string, req *rest.WorkerHeartbeatRequest) (*rest.WorkerHeartbeatResponse, error) {
	var resp rest.WorkerHeartbeatResponse
	path := fmt.Sprintf("/api/v1/workers/%s/heartbeat", workerID)
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LeaseBatches asks the master for up to max queued task batches.
func (c *Client) LeaseBatches(ctx context.Context, workerID string, max int) ([]*types.TaskBatch, error) {
	var resp rest.BatchLeaseResponse
	path := fmt.Sprintf("/api/v1/workers/%s/tasks?max=%d", workerID, max)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// SubmitResult posts a finished batch back to the master.
func (c *Client) SubmitResult(ctx context.Context, result *types.BatchResult) error {
	path := fmt.Sprintf("/api/v1/tasks/%s/result", result.BatchID)
	return c.doJSON(ctx, fasthttp.MethodPost, path, result, nil)
}

// Unregister removes the worker from the master's registry.
func (c *Client) Unregister(ctx context.Context, workerID, reason string) error {
	path := fmt.Sprintf("/api/v1/workers/%s/unregister", workerID)
	req := rest.WorkerUnregisterRequest{WorkerID: workerID, Reason: reason}
	return c.doJSON(ctx, fasthttp.MethodPost, path, req, nil)
}

// GetReport fetches a job's report. A non-empty path is evaluated as a
// JSONPath expression on the server. The raw JSON body is returned
// either way.
func (c *Client) GetReport(ctx context.Context, jobID, path string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(fmt.Sprintf("%s/api/v1/jobs/%s/report", c.baseURL, jobID))
	if path != "" {
		req.URI().QueryArgs().Set("path", path)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("fetching report for %s: %w", jobID, err)
	}

	if resp.StatusCode() >= 400 {
		var er rest.ErrorResponse
		if jsonutil.Unmarshal(resp.Body(), &er) == nil && er.Message != "" {
			return nil, fmt.Errorf("fetching report for %s: %s (%s)", jobID, er.Message, er.Error)
		}
		return nil, fmt.Errorf("fetching report for %s: status %d", jobID, resp.StatusCode())
	}

	// The body is owned by the pooled response.
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// doJSON performs one JSON request against the master.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	if body != nil {
		data, err := jsonutil.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		req.SetBody(data)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode() >= 400 {
		var er rest.ErrorResponse
		if jsonutil.Unmarshal(resp.Body(), &er) == nil && er.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, er.Message, er.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode())
	}

	if out != nil {
		if err := jsonutil.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
