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

// Package domains tracks the origins allowed to call the gateway. Unlike
// the template store this map mutates at runtime (origins register while
// the gateway serves traffic), so every access goes through the lock.
package domains

import (
	"sort"
	"sync"
	"time"
)

// RegisteredDomain is one allowed origin and the application that
// registered it.
type RegisteredDomain struct {
	Origin       string    `json:"origin"`
	Application  string    `json:"application"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Registry is the runtime origin allow-list backing the CORS callback.
type Registry struct {
	mu      sync.RWMutex
	origins map[string]RegisteredDomain
}

func NewRegistry() *Registry {
	return &Registry{
		origins: make(map[string]RegisteredDomain),
	}
}

// Register adds or refreshes an origin. Re-registering overwrites the
// previous owner.
func (r *Registry) Register(origin, application string) RegisteredDomain {
	domain := RegisteredDomain{
		Origin:       origin,
		Application:  application,
		RegisteredAt: time.Now(),
	}
	r.mu.Lock()
	r.origins[origin] = domain
	r.mu.Unlock()
	return domain
}

// IsAllowed reports whether the origin has been registered.
func (r *Registry) IsAllowed(origin string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.origins[origin]
	return ok
}

// List returns the registered domains ordered by origin.
func (r *Registry) List() []RegisteredDomain {
	r.mu.RLock()
	out := make([]RegisteredDomain, 0, len(r.origins))
	for _, domain := range r.origins {
		out = append(out, domain)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.origins)
}
