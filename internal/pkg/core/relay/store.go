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
	"sort"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const storeComponentName = "templatestore"

// Store maps template names to request templates. It is populated once at
// startup by the catalog loader and read-only afterwards, so lookups need
// no locking.
type Store struct {
	templates map[string]RequestTemplate
	logger    *slog.Logger
}

func NewStore() *Store {
	s := &Store{
		templates: make(map[string]RequestTemplate),
	}
	s.logger = loggerfactory.GetLogger(storeComponentName, s)
	return s
}

func (s *Store) UpdateLogger() {
	s.logger = loggerfactory.GetLogger(storeComponentName, s)
}

// LoadBytes parses one TOML catalog document and adds every template under
// the [templates.<name>] tables. A malformed document leaves the store as
// it was; the caller decides whether that is fatal (it never is for the
// catalog loader, which logs a warning and moves on).
func (s *Store) LoadBytes(source string, data []byte) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), toml.Parser()); err != nil {
		return fmt.Errorf("cannot parse template document %s: %w", source, err)
	}

	defs := make(map[string]RequestTemplate)
	if err := k.Unmarshal("templates", &defs); err != nil {
		return fmt.Errorf("cannot unmarshal templates from %s: %w", source, err)
	}

	for name, tmpl := range defs {
		tmpl.Name = name
		if _, exists := s.templates[name]; exists {
			s.logger.Warn("duplicate template definition, keeping the later one",
				slog.String("template", name), slog.String("source", source))
		}
		s.templates[name] = tmpl
	}
	return nil
}

// Add registers a single template. Used by tests and programmatic setups.
func (s *Store) Add(tmpl RequestTemplate) {
	s.templates[tmpl.Name] = tmpl
}

// Get returns the template and whether it exists.
func (s *Store) Get(name string) (RequestTemplate, bool) {
	tmpl, ok := s.templates[name]
	return tmpl, ok
}

func (s *Store) Len() int {
	return len(s.templates)
}

// Names returns the template names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
