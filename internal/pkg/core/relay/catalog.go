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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"gopkg.in/yaml.v2"
)

// Catalog builds a machine-readable description of every stored template:
// method, assembled URL shape and the placeholders its strings reference.
func (s *Store) Catalog() map[string]interface{} {
	templates := make(map[string]interface{})
	for _, name := range s.Names() {
		tmpl, _ := s.Get(name)
		entry := map[string]interface{}{
			"method": tmpl.Method,
			"url":    tmpl.URL(),
		}
		if placeholders := collectPlaceholders(tmpl); len(placeholders) > 0 {
			entry["placeholders"] = placeholders
		}
		templates[name] = entry
	}

	return map[string]interface{}{
		"count":     len(templates),
		"templates": templates,
	}
}

// collectPlaceholders gathers the distinct placeholder expressions across
// path, header and query strings, sorted for stable output.
func collectPlaceholders(tmpl RequestTemplate) []string {
	seen := make(map[string]struct{})
	scan := func(s string) {
		for _, seg := range parseSegments(s) {
			if seg.isPlaceholder() {
				seen[seg.raw] = struct{}{}
			}
		}
	}
	scan(tmpl.Path)
	for _, value := range tmpl.Headers {
		scan(value)
	}
	for _, value := range tmpl.Query {
		scan(value)
	}

	placeholders := make([]string, 0, len(seen))
	for raw := range seen {
		placeholders = append(placeholders, raw)
	}
	sort.Strings(placeholders)
	return placeholders
}

// ServeCatalogJSON writes the catalog document as indented JSON.
func (s *Store) ServeCatalogJSON(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.Catalog()); err != nil {
		return err
	}
	return nil
}

// ServeCatalogYAML writes the catalog document as YAML.
func (s *Store) ServeCatalogYAML(w http.ResponseWriter) error {
	yamlBytes, err := yaml.Marshal(s.Catalog())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal catalog to YAML: %v", err), http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(yamlBytes)
	return err
}
