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

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/crossgate/crossgate-go/internal/pkg/loggerfactory"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config wraps a loaded koanf tree.
type Config struct {
	koanf *koanf.Koanf
}

func ReadFile(filename string) (*Config, error) {
	k := koanf.New(".")
	f := file.Provider(filename)
	if err := k.Load(f, toml.Parser()); err != nil {
		return nil, err
	}
	cfg := &Config{
		koanf: k,
	}
	return cfg, nil
}

func (c *Config) IsSet(key string) bool {
	return c.koanf.Exists(key)
}

// Watch reloads the logger configuration whenever the file changes.
func (c *Config) Watch(ctx context.Context, filename string) {
	f := file.Provider(filename)

	f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("watch error: %v", err)
			return
		}
		// Throw away the old config and load a fresh copy.
		log.Println("config changed. Reloading ...")
		newK := koanf.New(".")
		if err := newK.Load(f, toml.Parser()); err != nil {
			log.Printf("error loading new config: %v", err)
			return
		}
		c.koanf = newK

		var levelMap map[string]string
		var slogHandlerConfig loggerfactory.SlogHandlerConfig

		c.MustUnmarshal("logger.level.components", &levelMap)
		c.MustUnmarshal("logger.handler", &slogHandlerConfig)

		cm := loggerfactory.GetConfigManager()
		cm.SetLogLevelMap(levelMap)
		cm.SetSlogHandlerConfig(slogHandlerConfig)
	})
}

func (c *Config) Unmarshal(key string, out interface{}) error {
	err := c.koanf.Unmarshal(key, out)
	if err != nil {
		return fmt.Errorf("cannot unmarshal config for key %q: %v", key, err)
	}
	return nil
}

func (c *Config) MustUnmarshal(key string, out interface{}) {
	err := c.Unmarshal(key, out)
	if err != nil {
		panic(err)
	}
}

// ServerConfig holds the listen address parameters.
type ServerConfig struct {
	Hostname string `koanf:"hostname"`
	Offset   int    `koanf:"offset"`
}

// GatewaySettings identifies the calling application and its backends.
type GatewaySettings struct {
	Application string `koanf:"application"`
	Backend     string `koanf:"backend"`
	CatalogURI  string `koanf:"catalogUri"`
}

// CORSSettings is the static part of the CORS allow-list; origins
// registered at runtime are added on top of it.
type CORSSettings struct {
	AllowOrigins     []string `koanf:"allowOrigins"`
	AllowMethods     []string `koanf:"allowMethods"`
	AllowHeaders     []string `koanf:"allowHeaders"`
	AllowCredentials bool     `koanf:"allowCredentials"`
	MaxAge           int      `koanf:"maxAge"`
}

// RateLimitSettings configures the gateway-wide request limiter.
type RateLimitSettings struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

// GatewayConfig is the full gateway configuration, constructed once at
// startup and passed into the components that need it.
type GatewayConfig struct {
	Server    ServerConfig
	Gateway   GatewaySettings
	CORS      CORSSettings
	RateLimit RateLimitSettings
}

// Initialize reads LoggerConfig.toml and gateway.toml from confFolderPath,
// wires the logger configuration (with hot reload) and returns the gateway
// configuration.
func Initialize(ctx context.Context, confFolderPath string) (*GatewayConfig, error) {
	gatewayConfig := &GatewayConfig{}

	for _, configurationType := range []string{"LoggerConfig", "gateway"} {
		configFilePath := filepath.Join(confFolderPath, configurationType+".toml")
		cfg, err := ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		switch configurationType {
		case "LoggerConfig":
			var levelMap map[string]string
			var slogHandlerConfig loggerfactory.SlogHandlerConfig

			if cfg.IsSet("logger") {
				cfg.MustUnmarshal("logger.handler", &slogHandlerConfig)
				cfg.MustUnmarshal("logger.level.components", &levelMap)
			}

			cm := loggerfactory.GetConfigManager()
			cm.SetLogLevelMap(levelMap)
			cm.SetSlogHandlerConfig(slogHandlerConfig)

			// Start watching for config changes
			cfg.Watch(context.Background(), configFilePath)

		case "gateway":
			if !cfg.IsSet("server") {
				return nil, fmt.Errorf("server configuration section is required in gateway.toml")
			}
			cfg.MustUnmarshal("server", &gatewayConfig.Server)
			if gatewayConfig.Server.Hostname == "" {
				return nil, fmt.Errorf("server hostname cannot be empty")
			}
			if gatewayConfig.Server.Offset < 0 {
				return nil, fmt.Errorf("server offset must be non-negative, got: %d", gatewayConfig.Server.Offset)
			}

			if cfg.IsSet("gateway") {
				cfg.MustUnmarshal("gateway", &gatewayConfig.Gateway)
			}
			if gatewayConfig.Gateway.Application == "" {
				return nil, fmt.Errorf("gateway application id cannot be empty")
			}

			if cfg.IsSet("cors") {
				cfg.MustUnmarshal("cors", &gatewayConfig.CORS)
			}
			if cfg.IsSet("ratelimit") {
				cfg.MustUnmarshal("ratelimit", &gatewayConfig.RateLimit)
			}
		}
	}
	return gatewayConfig, nil
}
