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

const registryComponentName = "permissions"

// Registry records which templates an application has declared. It is a
// strict intersection filter over the template store: a template absent
// here is denied even when the store has it. Read-only after load.
type Registry struct {
	application string
	declared    map[string]string // template name -> owning product
	logger      *slog.Logger
}

func NewRegistry(application string) *Registry {
	r := &Registry{
		application: application,
		declared:    make(map[string]string),
	}
	r.logger = loggerfactory.GetLogger(registryComponentName, r)
	return r
}

func (r *Registry) UpdateLogger() {
	r.logger = loggerfactory.GetLogger(registryComponentName, r)
}

func (r *Registry) Application() string {
	return r.application
}

// LoadBytes parses one TOML manifest document of shape
// [product.<productName>.requests.<templateName>] and records every key
// under requests as declared for this application.
func (r *Registry) LoadBytes(source string, data []byte) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), toml.Parser()); err != nil {
		return fmt.Errorf("cannot parse manifest document %s: %w", source, err)
	}

	products := k.Cut("product")
	for _, product := range products.MapKeys("") {
		requests := products.Cut(product + ".requests")
		for _, templateName := range requests.MapKeys("") {
			r.declared[templateName] = product
		}
	}
	return nil
}

// Declare registers a single template. Used by tests and programmatic setups.
func (r *Registry) Declare(templateName, product string) {
	r.declared[templateName] = product
}

// IsDeclared reports whether the application declared the template.
func (r *Registry) IsDeclared(templateName string) bool {
	_, ok := r.declared[templateName]
	return ok
}

// Declared returns the declared template names in sorted order.
func (r *Registry) Declared() []string {
	names := make([]string, 0, len(r.declared))
	for name := range r.declared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
