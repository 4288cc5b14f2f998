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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCatalogLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeCatalogFile(t, filepath.Join(root, "Templates"), "backend.toml", `
[templates.getUsers]
method = "GET"
protocol = "http"
host = "localhost:8000"
path = "/api/users"

[templates.getUser]
method = "GET"
protocol = "http"
host = "localhost:8000"
path = "/api/users/<%= context.userId %>"
`)
	writeCatalogFile(t, filepath.Join(root, "Templates"), "notes.txt", "not a template document")
	writeCatalogFile(t, filepath.Join(root, "Manifests"), "app2.toml", `
[product.backend.requests.getUsers]
declared = true
`)

	store := NewStore()
	registry := NewRegistry("app2")
	loader := NewCatalogLoader("file://"+root+"/", store, registry)

	require.NoError(t, loader.Load())
	assert.Equal(t, 2, store.Len())
	assert.True(t, registry.IsDeclared("getUsers"))
	assert.False(t, registry.IsDeclared("getUser"))

	tmpl, ok := store.Get("getUser")
	require.True(t, ok)
	assert.Equal(t, "/api/users/<%= context.userId %>", tmpl.Path)
}

func TestCatalogLoader_MissingCatalogDegradesToEmpty(t *testing.T) {
	root := t.TempDir()

	store := NewStore()
	registry := NewRegistry("app2")
	loader := NewCatalogLoader("file://"+root+"/missing", store, registry)

	require.NoError(t, loader.Load())
	assert.Zero(t, store.Len())
	assert.Empty(t, registry.Declared())
}

func TestCatalogLoader_MalformedTemplateDocumentIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeCatalogFile(t, filepath.Join(root, "Templates"), "bad.toml", `this is not toml at all = = =`)
	writeCatalogFile(t, filepath.Join(root, "Templates"), "good.toml", `
[templates.healthCheck]
method = "GET"
protocol = "http"
host = "localhost:8000"
path = "/health"
`)

	store := NewStore()
	registry := NewRegistry("app2")
	loader := NewCatalogLoader("file://"+root+"/", store, registry)

	require.NoError(t, loader.Load())
	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("healthCheck")
	assert.True(t, ok)
}

func TestCatalogLoader_MissingManifestLeavesAllUndeclared(t *testing.T) {
	root := t.TempDir()
	writeCatalogFile(t, filepath.Join(root, "Templates"), "backend.toml", `
[templates.getUsers]
method = "GET"
host = "localhost:8000"
path = "/api/users"
`)

	store := NewStore()
	registry := NewRegistry("otherapp")
	loader := NewCatalogLoader("file://"+root+"/", store, registry)

	require.NoError(t, loader.Load())
	assert.Equal(t, 1, store.Len())
	assert.False(t, registry.IsDeclared("getUsers"))
}
