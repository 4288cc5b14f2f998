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

package loggerfactory

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ConfigManager holds the logging configuration and the components that
// requested loggers, so they can be re-resolved when the config changes.
type ConfigManager struct {
	mu                   sync.RWMutex
	logLevelMap          map[string]string
	slogHandlerConfig    SlogHandlerConfig
	registeredComponents map[string]LoggerUser
}

// LoggerUser is implemented by components that want a fresh logger
// whenever the logging configuration is reloaded.
type LoggerUser interface {
	UpdateLogger()
}

var (
	configManagerInstance *ConfigManager
	once                  sync.Once
)

func GetConfigManager() *ConfigManager {
	once.Do(func() {
		configManagerInstance = &ConfigManager{
			logLevelMap:          make(map[string]string),
			registeredComponents: make(map[string]LoggerUser),
		}
	})
	return configManagerInstance
}

// SetLogLevelMap replaces the per-component level map and notifies
// registered components outside the lock.
func (cm *ConfigManager) SetLogLevelMap(levelMap map[string]string) {
	var componentsToNotify []LoggerUser

	cm.mu.Lock()
	cm.logLevelMap = levelMap
	for _, component := range cm.registeredComponents {
		componentsToNotify = append(componentsToNotify, component)
	}
	cm.mu.Unlock()

	for _, component := range componentsToNotify {
		component.UpdateLogger()
	}
}

func (cm *ConfigManager) GetLogLevelMap() map[string]string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.logLevelMap
}

// SetSlogHandlerConfig replaces the handler configuration and notifies
// registered components outside the lock.
func (cm *ConfigManager) SetSlogHandlerConfig(config SlogHandlerConfig) {
	var componentsToNotify []LoggerUser

	cm.mu.Lock()
	cm.slogHandlerConfig = config
	for _, component := range cm.registeredComponents {
		componentsToNotify = append(componentsToNotify, component)
	}
	cm.mu.Unlock()

	for _, component := range componentsToNotify {
		component.UpdateLogger()
	}
}

func (cm *ConfigManager) GetSlogHandlerConfig() SlogHandlerConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.slogHandlerConfig
}

// RegisterLoggerUser registers a component that uses a logger
func (cm *ConfigManager) RegisterLoggerUser(componentName string, component LoggerUser) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.registeredComponents[componentName]; !ok {
		cm.registeredComponents[componentName] = component
	}
}

// SlogHandlerConfig selects the slog handler implementation.
// format: json/text, outputPath: stdout/stderr
type SlogHandlerConfig struct {
	Format     string `koanf:"format"`
	OutputPath string `koanf:"outputPath"`
}

func GetSlogHandler(slogHandlerConfig SlogHandlerConfig) slog.Handler {
	out := os.Stdout
	if slogHandlerConfig.OutputPath == "stderr" {
		out = os.Stderr
	}
	if slogHandlerConfig.Format == "json" {
		return slog.NewJSONHandler(out, nil)
	}
	return slog.NewTextHandler(out, nil)
}

// A LevelHandler wraps a Handler with an Enabled method
// that returns false for levels below a minimum.
type LevelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

// NewLevelHandler returns a LevelHandler with the given level.
// All methods except Enabled delegate to h.
func NewLevelHandler(level slog.Leveler, h slog.Handler) *LevelHandler {
	// Avoid chains of LevelHandlers.
	if lh, ok := h.(*LevelHandler); ok {
		h = lh.Handler()
	}
	return &LevelHandler{level, h}
}

func (h *LevelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LevelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithAttrs(attrs))
}

func (h *LevelHandler) WithGroup(name string) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithGroup(name))
}

// Handler returns the Handler wrapped by h.
func (h *LevelHandler) Handler() slog.Handler {
	return h.handler
}

// LevelFromString converts a string representation of a log level to a slog.Leveler.
func LevelFromString(levelStr string) slog.Leveler {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns a logger for the named component and registers the
// component for config reloads when it implements LoggerUser. Components
// missing from the level map log at info.
func GetLogger(componentName string, component interface{}) *slog.Logger {
	cm := GetConfigManager()

	if loggerUser, ok := component.(LoggerUser); ok {
		cm.RegisterLoggerUser(componentName, loggerUser)
	}

	levelMap := cm.GetLogLevelMap()
	slogHandlerConfig := cm.GetSlogHandlerConfig()

	levelStr, ok := levelMap[componentName]
	if !ok {
		return slog.New(NewLevelHandler(slog.LevelInfo, GetSlogHandler(slogHandlerConfig)))
	}
	return slog.New(NewLevelHandler(LevelFromString(levelStr), GetSlogHandler(slogHandlerConfig)))
}
