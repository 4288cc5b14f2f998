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
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator gates every invocation: the template must exist in the store,
// be declared for the active application and carry its required fields.
// All three failures are terminal for the invocation.
type Validator struct {
	store    *Store
	registry *Registry
	validate *validator.Validate
}

func NewValidator(store *Store, registry *Registry) *Validator {
	return &Validator{
		store:    store,
		registry: registry,
		validate: validator.New(),
	}
}

// Validate returns the stored template or one of TemplateNotFoundError,
// TemplateNotDeclaredError, TemplateMalformedError.
func (v *Validator) Validate(name string) (RequestTemplate, error) {
	tmpl, ok := v.store.Get(name)
	if !ok {
		return RequestTemplate{}, &TemplateNotFoundError{Name: name}
	}
	if !v.registry.IsDeclared(name) {
		return RequestTemplate{}, &TemplateNotDeclaredError{Name: name, Application: v.registry.Application()}
	}
	if err := v.validate.Struct(tmpl); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var missing []string
			for _, fieldError := range validationErrors {
				missing = append(missing, strings.ToLower(fieldError.Field()))
			}
			return RequestTemplate{}, &TemplateMalformedError{
				Name:   name,
				Reason: "missing required field(s) " + strings.Join(missing, ", "),
			}
		}
		return RequestTemplate{}, &TemplateMalformedError{Name: name, Reason: err.Error()}
	}
	return tmpl, nil
}
