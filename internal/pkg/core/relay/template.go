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

// Package relay implements the template-based request relay: a store of
// declarative request templates, a per-application permission registry,
// placeholder rendering against a caller context, and outbound dispatch.
package relay

import "strings"

// RequestTemplate describes one outbound HTTP request. Path, header and
// query values may contain <%= context.dotted.path %> placeholders.
// Templates are immutable once loaded; Render works on a clone.
type RequestTemplate struct {
	Name     string            `koanf:"-" validate:"-"`
	Method   string            `koanf:"method" validate:"required"`
	Protocol string            `koanf:"protocol"`
	Host     string            `koanf:"host" validate:"required"`
	Path     string            `koanf:"path"`
	Headers  map[string]string `koanf:"headers"`
	Query    map[string]string `koanf:"query"`
}

// Clone returns a deep copy so substitution never touches the stored template.
func (t RequestTemplate) Clone() RequestTemplate {
	out := t
	if t.Headers != nil {
		out.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			out.Headers[k] = v
		}
	}
	if t.Query != nil {
		out.Query = make(map[string]string, len(t.Query))
		for k, v := range t.Query {
			out.Query[k] = v
		}
	}
	return out
}

// URL assembles {protocol}://{host}{path}, defaulting to https when the
// template does not name a protocol.
func (t RequestTemplate) URL() string {
	protocol := t.Protocol
	if protocol == "" {
		protocol = "https"
	}
	path := t.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return protocol + "://" + t.Host + path
}
