/*
Copyright 2025 The CrossGate Authors
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package client is the SDK side of the gateway: it invokes templates
// over the HTTP API, retries transport-level failures with bounded
// exponential backoff and fans events out to registered observers.
// A delivered upstream response, whatever its status code, is a
// successful invocation and is never retried here.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const componentName = "client"

// RetryPolicy bounds the retry loop: the k-th retry waits
// BaseDelay * Multiplier^(k-1) before running, so the first retry
// waits exactly BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// InvokeRequest is what the SDK sends for one invocation.
type InvokeRequest struct {
	Template string
	Context  map[string]interface{}
	Body     interface{}
}

// InvokeResponse is the gateway's answer.
type InvokeResponse struct {
	Success  bool              `json:"success"`
	Status   int               `json:"status,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Data     interface{}       `json:"data,omitempty"`
	Duration int64             `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// Observer receives every request, response and error event. Observers
// run in registration order; a panicking observer does not prevent the
// others from running.
type Observer interface {
	OnRequest(req InvokeRequest)
	OnResponse(req InvokeRequest, resp *InvokeResponse)
	OnError(req InvokeRequest, err error)
}

// Client invokes templates against a running gateway.
type Client struct {
	baseURL     string
	application string
	apiKey      string
	retry       RetryPolicy
	httpClient  *http.Client

	mu        sync.Mutex
	observers []Observer

	logger *slog.Logger
}

func New(baseURL, application, apiKey string, retry RetryPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	c := &Client{
		baseURL:     baseURL,
		application: application,
		apiKey:      apiKey,
		retry:       retry,
		httpClient:  &http.Client{Timeout: 35 * time.Second},
	}
	c.logger = loggerfactory.GetLogger(componentName, c)
	return c
}

func (c *Client) UpdateLogger() {
	c.logger = loggerfactory.GetLogger(componentName, c)
}

// AddObserver registers an observer for all subsequent invocations.
func (c *Client) AddObserver(observer Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, observer)
	c.mu.Unlock()
}

func (c *Client) snapshotObservers() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Observer(nil), c.observers...)
}

func (c *Client) notify(fn func(Observer)) {
	for _, observer := range c.snapshotObservers() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("observer panicked", slog.Any("panic", r))
				}
			}()
			fn(observer)
		}()
	}
}

// Invoke runs one template invocation, retrying only when no HTTP
// response was delivered by the gateway or the gateway itself reported a
// transport failure (502). Validation failures and upstream error
// statuses return immediately.
func (c *Client) Invoke(ctx context.Context, template string, callContext map[string]interface{}, body interface{}) (*InvokeResponse, error) {
	req := InvokeRequest{Template: template, Context: callContext, Body: body}
	c.notify(func(o Observer) { o.OnRequest(req) })

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				err := ctx.Err()
				c.notify(func(o Observer) { o.OnError(req, err) })
				return nil, err
			case <-time.After(c.retry.delay(attempt - 1)):
			}
		}

		resp, httpStatus, err := c.attempt(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Debug("invoke attempt failed",
				slog.String("template", template),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}
		if httpStatus == http.StatusBadGateway {
			lastErr = fmt.Errorf("gateway transport failure: %s", resp.Error)
			continue
		}
		c.notify(func(o Observer) { o.OnResponse(req, resp) })
		return resp, nil
	}

	c.notify(func(o Observer) { o.OnError(req, lastErr) })
	return nil, fmt.Errorf("invoke %q failed after %d attempts: %w", template, c.retry.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req InvokeRequest) (*InvokeResponse, int, error) {
	payload, err := json.Marshal(struct {
		Context map[string]interface{} `json:"context,omitempty"`
		Body    interface{}            `json:"body,omitempty"`
	}{req.Context, req.Body})
	if err != nil {
		return nil, 0, fmt.Errorf("cannot encode invoke payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/invoke/"+req.Template, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.application != "" {
		httpReq.Header.Set("X-Application-Id", c.application)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	var resp InvokeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("cannot decode gateway response: %w", err)
	}
	return &resp, httpResp.StatusCode, nil
}
