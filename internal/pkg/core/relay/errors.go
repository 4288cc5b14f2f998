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

import "fmt"

// TemplateNotFoundError is returned when the template store has no entry
// for the requested name. Terminal for the invocation, never retried.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q not found in the template store", e.Name)
}

// TemplateNotDeclaredError is returned when the template exists but the
// calling application never declared it in its manifest.
type TemplateNotDeclaredError struct {
	Name        string
	Application string
}

func (e *TemplateNotDeclaredError) Error() string {
	return fmt.Sprintf("template %q is not declared for application %q", e.Name, e.Application)
}

// TemplateMalformedError is returned when a stored template is missing
// required fields.
type TemplateMalformedError struct {
	Name   string
	Reason string
}

func (e *TemplateMalformedError) Error() string {
	return fmt.Sprintf("template %q is malformed: %s", e.Name, e.Reason)
}

// TransportError wraps a network-level dispatch failure (timeout, DNS,
// connection refused). A received HTTP response of any status is not a
// transport error.
type TransportError struct {
	Name string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch of template %q failed: %v", e.Name, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
