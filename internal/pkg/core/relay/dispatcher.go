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

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/core/reqlog"
	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const (
	dispatcherComponentName = "dispatcher"

	// Upper bound on the outbound call; expiry is a transport failure.
	dispatchTimeout = 30 * time.Second
)

// Invocation is one caller request against a named template.
type Invocation struct {
	Template string
	Context  map[string]interface{}
	Body     []byte
	Origin   string
	APIKey   string
}

// InvocationResult carries either a received response (any status code,
// including 4xx/5xx: the relay forwards, it does not interpret) or a
// terminal error. Data holds the decoded JSON body when the upstream
// responded with JSON, the raw body string otherwise.
type InvocationResult struct {
	Success  bool
	Status   int
	Headers  map[string]string
	Body     []byte
	Data     interface{}
	Duration time.Duration
	Err      error
}

// Dispatcher validates, renders and performs outbound calls, appending one
// log entry per dispatched invocation. It performs no retries; retry is
// the calling SDK's concern.
type Dispatcher struct {
	validator *Validator
	renderer  *Renderer
	log       *reqlog.Log
	client    *http.Client
	logger    *slog.Logger
}

func NewDispatcher(validator *Validator, renderer *Renderer, log *reqlog.Log) *Dispatcher {
	d := &Dispatcher{
		validator: validator,
		renderer:  renderer,
		log:       log,
		client:    &http.Client{Timeout: dispatchTimeout},
	}
	d.logger = loggerfactory.GetLogger(dispatcherComponentName, d)
	return d
}

func (d *Dispatcher) UpdateLogger() {
	d.logger = loggerfactory.GetLogger(dispatcherComponentName, d)
}

// Invoke runs the full pipeline: validate, render, dispatch, record.
// Validation failures return before any network attempt and are not
// recorded in the log; once a call is dispatched, exactly one entry is
// recorded whether or not a response arrived.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) InvocationResult {
	tmpl, err := d.validator.Validate(inv.Template)
	if err != nil {
		return InvocationResult{Err: err}
	}

	rendered := d.renderer.Render(tmpl, inv.Context)
	requestURL := rendered.URL()
	if len(rendered.Query) > 0 {
		values := url.Values{}
		for name, value := range rendered.Query {
			values.Set(name, value)
		}
		requestURL += "?" + values.Encode()
	}

	var bodyReader io.Reader
	if len(inv.Body) > 0 {
		bodyReader = bytes.NewReader(inv.Body)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, rendered.Method, requestURL, bodyReader)
	if err != nil {
		return InvocationResult{Err: &TransportError{Name: inv.Template, Err: err}, Duration: time.Since(start)}
	}
	for name, value := range rendered.Headers {
		req.Header.Set(name, value)
	}
	if len(inv.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	d.logger.Debug("dispatching template",
		slog.String("template", inv.Template),
		slog.String("method", rendered.Method),
		slog.String("url", requestURL))

	resp, err := d.client.Do(req)
	duration := time.Since(start)

	entry := reqlog.Entry{
		Method: rendered.Method,
		Path:   rendered.Path,
		Origin: inv.Origin,
		APIKey: inv.APIKey,
	}

	if err != nil {
		entry.Duration = duration
		d.log.Record(entry)
		d.logger.Warn("dispatch failed",
			slog.String("template", inv.Template),
			slog.String("error", err.Error()))
		return InvocationResult{
			Err:      &TransportError{Name: inv.Template, Err: err},
			Duration: duration,
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	duration = time.Since(start)
	entry.Status = resp.StatusCode
	entry.Completed = true
	entry.Duration = duration
	d.log.Record(entry)
	if err != nil {
		return InvocationResult{
			Err:      &TransportError{Name: inv.Template, Err: err},
			Status:   resp.StatusCode,
			Duration: duration,
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}

	result := InvocationResult{
		Success:  true,
		Status:   resp.StatusCode,
		Headers:  headers,
		Body:     bodyBytes,
		Duration: duration,
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var data interface{}
		if err := json.Unmarshal(bodyBytes, &data); err == nil {
			result.Data = data
		} else {
			result.Data = string(bodyBytes)
		}
	} else {
		result.Data = string(bodyBytes)
	}
	return result
}
