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
	"fmt"
	"log/slog"
	"strings"

	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const (
	rendererComponentName = "renderer"

	placeholderOpen  = "<%="
	placeholderClose = "%>"
)

// segment is one parsed piece of a template string: either a literal run
// or a placeholder. For placeholders, raw keeps the verbatim marker text
// so an unresolvable reference can be left unchanged in the output.
type segment struct {
	raw  string
	path []string
}

func (s segment) isPlaceholder() bool {
	return s.path != nil
}

// parseSegments splits a template string into literal and placeholder
// segments. An unterminated open marker is treated as literal text.
func parseSegments(s string) []segment {
	var segments []segment
	for len(s) > 0 {
		open := strings.Index(s, placeholderOpen)
		if open < 0 {
			segments = append(segments, segment{raw: s})
			break
		}
		end := strings.Index(s[open+len(placeholderOpen):], placeholderClose)
		if end < 0 {
			segments = append(segments, segment{raw: s})
			break
		}
		if open > 0 {
			segments = append(segments, segment{raw: s[:open]})
		}
		closeAt := open + len(placeholderOpen) + end + len(placeholderClose)
		raw := s[open:closeAt]
		expr := strings.TrimSpace(s[open+len(placeholderOpen) : closeAt-len(placeholderClose)])
		segments = append(segments, segment{raw: raw, path: strings.Split(expr, ".")})
		s = s[closeAt:]
	}
	return segments
}

// resolvePath walks the caller context along the dotted path. The first
// path element names the context root itself ("context"); the rest index
// into nested maps. Only primitive leaf values substitute.
func resolvePath(context map[string]interface{}, path []string) (string, bool) {
	if len(path) == 0 || path[0] != "context" {
		return "", false
	}
	var current interface{} = context
	for _, key := range path[1:] {
		node, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = node[key]
		if !ok {
			return "", false
		}
	}
	switch value := current.(type) {
	case string:
		return value, true
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", value), true
	default:
		return "", false
	}
}

// Renderer substitutes placeholders in a template against a caller
// context. It never errors and never partially substitutes: a placeholder
// whose path cannot be resolved stays verbatim and a warning is logged.
type Renderer struct {
	logger *slog.Logger
}

func NewRenderer() *Renderer {
	r := &Renderer{}
	r.logger = loggerfactory.GetLogger(rendererComponentName, r)
	return r
}

func (r *Renderer) UpdateLogger() {
	r.logger = loggerfactory.GetLogger(rendererComponentName, r)
}

// Render returns a rendered deep copy of the template; the stored
// template is never mutated. Each placeholder resolves independently.
func (r *Renderer) Render(tmpl RequestTemplate, context map[string]interface{}) RequestTemplate {
	out := tmpl.Clone()
	out.Path = r.renderString(tmpl.Name, "path", out.Path, context)
	for name, value := range out.Headers {
		out.Headers[name] = r.renderString(tmpl.Name, "header "+name, value, context)
	}
	for name, value := range out.Query {
		out.Query[name] = r.renderString(tmpl.Name, "query "+name, value, context)
	}
	return out
}

func (r *Renderer) renderString(templateName, field, s string, context map[string]interface{}) string {
	if !strings.Contains(s, placeholderOpen) {
		return s
	}
	var b strings.Builder
	for _, seg := range parseSegments(s) {
		if !seg.isPlaceholder() {
			b.WriteString(seg.raw)
			continue
		}
		value, ok := resolvePath(context, seg.path)
		if !ok {
			r.logger.Warn("unresolved template placeholder",
				slog.String("template", templateName),
				slog.String("field", field),
				slog.String("placeholder", seg.raw))
			b.WriteString(seg.raw)
			continue
		}
		b.WriteString(value)
	}
	return b.String()
}
