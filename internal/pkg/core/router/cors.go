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
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/crossgate/crossgate-go/internal/pkg/core/domains"
)

// CORSConfig is the static part of the gateway CORS policy. Origins
// registered at runtime through the domain registry are allowed on top of
// the configured list.
type CORSConfig struct {
	AllowOrigins     []string // can contain wildcards like "*" or "*.example.com"
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // preflight cache duration in seconds
}

// DefaultCORSConfig returns a default CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Application-Id"},
		ExposeHeaders:    []string{},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// IsOriginAllowed checks the origin against the configured list.
func (c *CORSConfig) IsOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowedOrigin := range c.AllowOrigins {
		if allowedOrigin == "*" {
			return true
		}
		if allowedOrigin == origin {
			return true
		}
		// Support for subdomain wildcards like "*.example.com"
		if strings.HasPrefix(allowedOrigin, "*.") {
			domain := allowedOrigin[2:]
			if strings.HasSuffix(origin, domain) {
				return true
			}
		}
	}
	return false
}

// CORSMiddleware applies CORS headers using the rs/cors package. The
// decision callback consults the static config first, then the runtime
// domain registry, so origins registered while the gateway is running
// take effect on their next preflight.
func CORSMiddleware(handler http.Handler, config CORSConfig, registry *domains.Registry) http.Handler {
	options := cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if config.IsOriginAllowed(origin) {
				return true
			}
			return registry != nil && registry.IsAllowed(origin)
		},
		AllowedMethods:   config.AllowMethods,
		AllowedHeaders:   config.AllowHeaders,
		ExposedHeaders:   config.ExposeHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}

	corsHandler := cors.New(options)
	return corsHandler.Handler(handler)
}
