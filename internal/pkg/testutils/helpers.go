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

package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/core/relay"
)

// CreateTestTemplate creates a template with the common fields filled in.
func CreateTestTemplate(name, method, host, path string) relay.RequestTemplate {
	return relay.RequestTemplate{
		Name:     name,
		Method:   method,
		Protocol: "http",
		Host:     host,
		Path:     path,
	}
}

// TemplateForServer builds a template pointing at a httptest server.
func TemplateForServer(name, method, serverURL, path string) relay.RequestTemplate {
	parsed, _ := url.Parse(serverURL)
	return relay.RequestTemplate{
		Name:     name,
		Method:   method,
		Protocol: parsed.Scheme,
		Host:     parsed.Host,
		Path:     path,
	}
}

// CreateTestStore creates a store populated with the given templates.
func CreateTestStore(templates ...relay.RequestTemplate) *relay.Store {
	store := relay.NewStore()
	for _, tmpl := range templates {
		store.Add(tmpl)
	}
	return store
}

// CreateTestRegistry creates a registry with every named template declared.
func CreateTestRegistry(application string, templateNames ...string) *relay.Registry {
	registry := relay.NewRegistry(application)
	for _, name := range templateNames {
		registry.Declare(name, "test")
	}
	return registry
}

// CreateMockHTTPServer creates a mock upstream that echoes request facts
// back as JSON.
func CreateMockHTTPServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"status": "success",
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}))
}

// CreateMockErrorServer creates a mock upstream that returns errors
func CreateMockErrorServer(statusCode int, errorMessage string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write([]byte(fmt.Sprintf(`{"error":"%s","code":%d}`, errorMessage, statusCode)))
	}))
}

// CreateSlowMockServer creates a mock upstream with configurable delay
func CreateSlowMockServer(delay time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"slow response","delay":"` + delay.String() + `"}`))
	}))
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}
