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

package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/config"
	"github.com/crossgate/crossgate-go/internal/pkg/core/domains"
	"github.com/crossgate/crossgate-go/internal/pkg/core/relay"
	"github.com/crossgate/crossgate-go/internal/pkg/core/reqlog"
	"github.com/crossgate/crossgate-go/internal/pkg/core/router"
)

const (
	basePort = 8790

	invokeLogCapacity = 1000
	accessLogCapacity = 100
)

// Run wires the gateway together and serves until the context is
// cancelled.
//
// crossgate/
// ├─ bin/
// │  └─ crossgate          (the compiled binary)
// ├─ conf/                 LoggerConfig.toml, gateway.toml
// └─ catalog/
//    ├─ Templates/
//    └─ Manifests/
func Run(ctx context.Context) error {
	start := time.Now()
	PrintWelcomeMessage()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	homeDir, err := resolveHome()
	if err != nil {
		return fmt.Errorf("cannot resolve gateway home: %w", err)
	}

	cfg, err := config.Initialize(ctx, filepath.Join(homeDir, "conf"))
	if err != nil {
		return fmt.Errorf("initialization error: %w", err)
	}

	store := relay.NewStore()
	registry := relay.NewRegistry(cfg.Gateway.Application)

	catalogURI := cfg.Gateway.CatalogURI
	if catalogURI == "" {
		catalogURI = "file://" + filepath.ToSlash(filepath.Join(homeDir, "catalog")) + "/"
	}
	loader := relay.NewCatalogLoader(catalogURI, store, registry)
	loader.Load()

	invokeLog := reqlog.NewLog(invokeLogCapacity)
	accessLog := reqlog.NewLog(accessLogCapacity)
	dispatcher := relay.NewDispatcher(relay.NewValidator(store, registry), relay.NewRenderer(), invokeLog)
	domainRegistry := domains.NewRegistry()

	corsConfig := router.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}
	if len(cfg.CORS.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.CORS.AllowMethods
	}
	if len(cfg.CORS.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.CORS.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.CORS.AllowCredentials
	if cfg.CORS.MaxAge > 0 {
		corsConfig.MaxAge = cfg.CORS.MaxAge
	}

	listenPort := fmt.Sprintf(":%d", basePort+cfg.Server.Offset)
	routerService := router.NewRouterService(listenPort, cfg.Server.Hostname, router.Options{
		Dispatcher:     dispatcher,
		Store:          store,
		DomainRegistry: domainRegistry,
		InvokeLog:      invokeLog,
		AccessLog:      accessLog,
		Application:    cfg.Gateway.Application,
		BackendURL:     cfg.Gateway.Backend,
		CORS:           corsConfig,
		RateLimit:      cfg.RateLimit.Limit,
		RateWindow:     cfg.RateLimit.Window,
	})

	routerService.StartServer(ctx)
	log.Printf("Gateway started in: %v", time.Since(start))

	<-ctx.Done()
	routerService.StopServer()
	log.Println("HTTP server shutdown gracefully")
	return nil
}

// resolveHome prefers CROSSGATE_HOME, falling back to the directory
// above the executable.
func resolveHome() (string, error) {
	if home := os.Getenv("CROSSGATE_HOME"); home != "" {
		return home, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), ".."), nil
}

func PrintWelcomeMessage() {
	colors := []string{
		"\033[31m", // Red
		"\033[33m", // Yellow
		"\033[32m", // Green
		"\033[36m", // Cyan
		"\033[34m", // Blue
		"\033[35m", // Magenta
	}

	// ANSI code to reset color to default
	reset := "\033[0m"

	art := []string{
		"",
		"   ____                     ____       _       ",
		"  / ___|_ __ ___  ___ ___  / ___| __ _| |_ ___ ",
		" | |   | '__/ _ \\/ __/ __|| |  _ / _` | __/ _ \\",
		" | |___| | | (_) \\__ \\__ \\| |_| | (_| | ||  __/",
		"  \\____|_|  \\___/|___/___/ \\____|\\__,_|\\__\\___|",
		"",
	}
	for _, line := range art {
		for i, char := range line {
			color := colors[i%len(colors)]
			fmt.Printf("%s%c", color, char)
		}
		fmt.Println(reset)
	}
}
