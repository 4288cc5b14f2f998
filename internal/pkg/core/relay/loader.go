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
	"io"
	"log/slog"
	"strings"

	"github.com/c2fo/vfs/v7"
	"github.com/c2fo/vfs/v7/vfssimple"

	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"
)

const loaderComponentName = "catalogloader"

// CatalogLoader populates the template store and permission registry from
// a catalog location:
//
//	catalog/
//	├─ Templates/    *.toml template documents
//	└─ Manifests/    <application>.toml permission manifests
//
// The location is a vfs URI (file:// for local catalogs, any registered
// backend otherwise). Loading is idempotent and happens once at startup;
// a missing or malformed source leaves the affected component empty with
// a warning, so subsequent lookups fail as not-found rather than crashing
// the gateway.
type CatalogLoader struct {
	baseURI  string
	store    *Store
	registry *Registry
	logger   *slog.Logger
}

func NewCatalogLoader(baseURI string, store *Store, registry *Registry) *CatalogLoader {
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}
	l := &CatalogLoader{
		baseURI:  baseURI,
		store:    store,
		registry: registry,
	}
	l.logger = loggerfactory.GetLogger(loaderComponentName, l)
	return l
}

func (l *CatalogLoader) UpdateLogger() {
	l.logger = loggerfactory.GetLogger(loaderComponentName, l)
}

// Load reads every template document and the active application's
// manifest. Always returns nil: catalog problems degrade to an empty
// store/registry, they never abort startup.
func (l *CatalogLoader) Load() error {
	l.loadTemplates()
	l.loadManifest()
	l.logger.Info("catalog loaded",
		slog.Int("templates", l.store.Len()),
		slog.String("application", l.registry.Application()),
		slog.Int("declared", len(l.registry.Declared())))
	return nil
}

func (l *CatalogLoader) loadTemplates() {
	location, err := vfssimple.NewLocation(l.baseURI + "Templates/")
	if err != nil {
		l.logger.Warn("cannot resolve template location, store stays empty",
			slog.String("uri", l.baseURI+"Templates/"), slog.String("error", err.Error()))
		return
	}
	files, err := location.List()
	if err != nil {
		l.logger.Warn("cannot list template documents, store stays empty",
			slog.String("uri", location.URI()), slog.String("error", err.Error()))
		return
	}
	for _, name := range files {
		if !strings.HasSuffix(name, ".toml") {
			continue
		}
		data, err := l.readFile(location, name)
		if err != nil {
			l.logger.Warn("cannot read template document",
				slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		if err := l.store.LoadBytes(name, data); err != nil {
			l.logger.Warn("skipping malformed template document",
				slog.String("file", name), slog.String("error", err.Error()))
		}
	}
}

func (l *CatalogLoader) loadManifest() {
	manifestName := l.registry.Application() + ".toml"
	location, err := vfssimple.NewLocation(l.baseURI + "Manifests/")
	if err != nil {
		l.logger.Warn("cannot resolve manifest location, all templates stay undeclared",
			slog.String("uri", l.baseURI+"Manifests/"), slog.String("error", err.Error()))
		return
	}
	data, err := l.readFile(location, manifestName)
	if err != nil {
		l.logger.Warn("cannot read application manifest, all templates stay undeclared",
			slog.String("file", manifestName), slog.String("error", err.Error()))
		return
	}
	if err := l.registry.LoadBytes(manifestName, data); err != nil {
		l.logger.Warn("skipping malformed application manifest",
			slog.String("file", manifestName), slog.String("error", err.Error()))
	}
}

func (l *CatalogLoader) readFile(location vfs.Location, name string) ([]byte, error) {
	file, err := location.NewFile(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
