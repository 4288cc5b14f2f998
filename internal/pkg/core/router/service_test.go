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

package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/crossgate/crossgate-go/internal/pkg/core/domains"
	"github.com/crossgate/crossgate-go/internal/pkg/core/relay"
	"github.com/crossgate/crossgate-go/internal/pkg/core/reqlog"
	"github.com/crossgate/crossgate-go/internal/pkg/testutils"
)

type gatewayFixture struct {
	gateway   *httptest.Server
	upstream  *httptest.Server
	invokeLog *reqlog.Log
	accessLog *reqlog.Log
	registry  *domains.Registry
}

func (f *gatewayFixture) Close() {
	f.gateway.Close()
	f.upstream.Close()
}

// newGatewayFixture wires a full gateway surface against an echoing mock
// upstream, with getUsers and getUser declared for the test application.
func newGatewayFixture(t *testing.T, configure func(*Options)) *gatewayFixture {
	t.Helper()
	upstream := testutils.CreateMockHTTPServer()

	store := testutils.CreateTestStore(
		testutils.TemplateForServer("getUsers", "GET", upstream.URL, "/api/users"),
		testutils.TemplateForServer("getUser", "GET", upstream.URL, "/api/users/<%= context.userId %>"),
		testutils.TemplateForServer("hidden", "GET", upstream.URL, "/api/hidden"),
	)
	permissions := testutils.CreateTestRegistry("app2", "getUsers", "getUser")
	invokeLog := reqlog.NewLog(100)
	accessLog := reqlog.NewLog(100)
	registry := domains.NewRegistry()

	dispatcher := relay.NewDispatcher(
		relay.NewValidator(store, permissions),
		relay.NewRenderer(),
		invokeLog,
	)

	opts := Options{
		Dispatcher:     dispatcher,
		Store:          store,
		DomainRegistry: registry,
		InvokeLog:      invokeLog,
		AccessLog:      accessLog,
		Application:    "app2",
		CORS:           DefaultCORSConfig(),
	}
	if configure != nil {
		configure(&opts)
	}

	rs := NewRouterService(":0", "localhost", opts)
	return &gatewayFixture{
		gateway:   httptest.NewServer(rs.Handler()),
		upstream:  upstream,
		invokeLog: invokeLog,
		accessLog: accessLog,
		registry:  registry,
	}
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestInvokeEndpoint_Success(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success bool                   `json:"success"`
		Status  int                    `json:"status"`
		Data    map[string]interface{} `json:"data"`
	}
	decodeBody(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "/api/users", result.Data["path"])
}

func TestInvokeEndpoint_PlaceholderSubstitution(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/invoke/getUser", map[string]interface{}{
		"context": map[string]interface{}{"userId": 42},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data map[string]interface{} `json:"data"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, "/api/users/42", result.Data["path"])
}

func TestInvokeEndpoint_UnknownTemplate(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/invoke/nonexistent", map[string]interface{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodeBody(t, resp, &result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, 0, f.invokeLog.Len())
}

func TestInvokeEndpoint_UndeclaredTemplate(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/invoke/hidden", map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var result struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &result)
	assert.Contains(t, result.Error, "not declared")
}

func TestInvokeEndpoint_UpstreamErrorStatusRelayedAsSuccess(t *testing.T) {
	errorServer := testutils.CreateMockErrorServer(http.StatusServiceUnavailable, "down")
	defer errorServer.Close()

	g := newGatewayFixtureWithUpstream(t, errorServer)
	defer g.gateway.Close()

	resp := postJSON(t, g.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success bool `json:"success"`
		Status  int  `json:"status"`
	}
	decodeBody(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
}

// newGatewayFixtureWithUpstream wires the gateway against a caller-owned
// upstream (not closed by the fixture).
func newGatewayFixtureWithUpstream(t *testing.T, upstream *httptest.Server) *gatewayFixture {
	t.Helper()
	store := testutils.CreateTestStore(
		testutils.TemplateForServer("getUsers", "GET", upstream.URL, "/api/users"),
	)
	invokeLog := reqlog.NewLog(100)
	dispatcher := relay.NewDispatcher(
		relay.NewValidator(store, testutils.CreateTestRegistry("app2", "getUsers")),
		relay.NewRenderer(),
		invokeLog,
	)
	rs := NewRouterService(":0", "localhost", Options{
		Dispatcher:     dispatcher,
		Store:          store,
		DomainRegistry: domains.NewRegistry(),
		InvokeLog:      invokeLog,
		AccessLog:      reqlog.NewLog(100),
		Application:    "app2",
		CORS:           DefaultCORSConfig(),
	})
	return &gatewayFixture{gateway: httptest.NewServer(rs.Handler()), upstream: upstream, invokeLog: invokeLog}
}

func TestStatsEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	postJSON(t, f.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{}).Body.Close()
	postJSON(t, f.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{}).Body.Close()

	resp, err := http.Get(f.gateway.URL + "/api/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats reqlog.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.RecentRequests)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestStatsEndpoint_InvalidWindow(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/api/stats?window=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogsEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	postJSON(t, f.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{}).Body.Close()

	resp, err := http.Get(f.gateway.URL + "/api/logs?limit=10")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Logs []map[string]interface{} `json:"logs"`
	}
	decodeBody(t, resp, &payload)
	require.Len(t, payload.Logs, 1)
	assert.Equal(t, "/api/users", payload.Logs[0]["path"])
}

func TestGatewayLogsEndpoint_RecordsAccess(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(f.gateway.URL + "/api/gateway/logs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Logs []map[string]interface{} `json:"logs"`
	}
	decodeBody(t, resp, &payload)
	require.NotEmpty(t, payload.Logs)
	assert.Equal(t, "/livez", payload.Logs[0]["path"])
}

func TestTemplatesEndpoint_JSONCatalog(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/api/templates")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var catalog struct {
		Count     int                               `json:"count"`
		Templates map[string]map[string]interface{} `json:"templates"`
	}
	decodeBody(t, resp, &catalog)
	assert.Equal(t, 3, catalog.Count)
	require.Contains(t, catalog.Templates, "getUser")
	assert.Equal(t, "GET", catalog.Templates["getUser"]["method"])
}

func TestTemplatesEndpoint_YAMLCatalog(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/api/templates?catalog.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var catalog map[string]interface{}
	require.NoError(t, yaml.Unmarshal(body, &catalog))
	assert.Equal(t, 3, catalog["count"])
}

func TestDomainEndpoints(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/domains", map[string]string{
		"origin": "http://localhost:5173",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered domains.RegisteredDomain
	decodeBody(t, resp, &registered)
	assert.Equal(t, "http://localhost:5173", registered.Origin)
	assert.Equal(t, "app2", registered.Application) // defaulted from the gateway

	resp, err := http.Get(f.gateway.URL + "/api/domains")
	require.NoError(t, err)
	var listed struct {
		Domains []domains.RegisteredDomain `json:"domains"`
	}
	decodeBody(t, resp, &listed)
	require.Len(t, listed.Domains, 1)
	assert.True(t, f.registry.IsAllowed("http://localhost:5173"))
}

func TestDomainRegistration_RejectsBadOrigin(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp := postJSON(t, f.gateway.URL+"/api/domains", map[string]string{
		"origin": "not a url",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProxyEndpoint_PassThrough(t *testing.T) {
	backend := testutils.CreateMockHTTPServer()
	defer backend.Close()

	f := newGatewayFixture(t, func(opts *Options) {
		opts.BackendURL = backend.URL
	})
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/proxy/api/items?limit=5")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var echoed map[string]interface{}
	decodeBody(t, resp, &echoed)
	assert.Equal(t, "/api/items", echoed["path"])
	assert.Equal(t, "limit=5", echoed["query"])
}

func TestProxyEndpoint_RelaysBackendErrors(t *testing.T) {
	backend := testutils.CreateMockErrorServer(http.StatusInternalServerError, "kaput")
	defer backend.Close()

	f := newGatewayFixture(t, func(opts *Options) {
		opts.BackendURL = backend.URL
	})
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/proxy/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestProxyEndpoint_BackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backendURL := backend.URL
	backend.Close()

	f := newGatewayFixture(t, func(opts *Options) {
		opts.BackendURL = backendURL
	})
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/proxy/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestLivezEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/livez")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	decodeBody(t, resp, &status)
	assert.Equal(t, "UP", status["status"])
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	f := newGatewayFixture(t, func(opts *Options) {
		opts.RateLimit = 2
		opts.RateWindow = time.Minute
	})
	defer f.Close()

	resp, err := http.Get(f.gateway.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))

	resp, err = http.Get(f.gateway.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(f.gateway.URL + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "retry_after")
}

type hijackProbeWriter struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackProbeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorderDelegatesHijack(t *testing.T) {
	inner := &hijackProbeWriter{ResponseRecorder: httptest.NewRecorder()}
	recorder := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

	var _ http.Hijacker = recorder
	_, _, err := recorder.Hijack()
	require.NoError(t, err)
	assert.True(t, inner.hijacked)
	assert.Same(t, http.ResponseWriter(inner), recorder.Unwrap())
}

func TestStatusRecorderHijackWithoutSupport(t *testing.T) {
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := recorder.Hijack()
	assert.Error(t, err)
}

func TestLogStream_UpgradesThroughAccessLogMiddleware(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	// The fixture handler carries the full middleware chain, so a
	// successful dial proves the upgrade survives the access-log wrapper.
	wsURL := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/ws/logs"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestLogStream_ClientDisconnectReleasesSubscription(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	wsURL := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.True(t, testutils.WaitForCondition(func() bool {
		return f.invokeLog.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond))

	conn.Close()

	assert.True(t, testutils.WaitForCondition(func() bool {
		return f.invokeLog.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond))
}

func TestLogStream_DeliversInvocationEntries(t *testing.T) {
	f := newGatewayFixture(t, nil)
	defer f.Close()

	wsURL := "ws" + strings.TrimPrefix(f.gateway.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	postJSON(t, f.gateway.URL+"/api/invoke/getUsers", map[string]interface{}{}).Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var entry map[string]interface{}
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "/api/users", entry["path"])
}
