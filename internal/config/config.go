/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"airunner/internal/domain"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type BackendConfig struct {
	BaseURL         string  `yaml:"base_url"`
	TimeoutMs       int     `yaml:"timeout_ms"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	BreakerFailures int     `yaml:"breaker_failures"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	NSFWFilter     bool   `yaml:"nsfw_filter"`
	ResizeOnPaste  bool   `yaml:"resize_on_paste"`
}

type CanvasConfig struct {
	GridSize       int    `yaml:"grid_size"`
	SnapToGrid     bool   `yaml:"snap_to_grid"`
	ShowGrid       bool   `yaml:"show_grid"`
	BrushSize      int    `yaml:"brush_size"`
	PrimaryColor   string `yaml:"primary_color"`
	SecondaryColor string `yaml:"secondary_color"`
	CanvasColor    string `yaml:"canvas_color"`
	WorkingWidth   int    `yaml:"working_width"`
	WorkingHeight  int    `yaml:"working_height"`
}

type HistoryConfig struct {
	MaxDepth int `yaml:"max_depth"` // 0 = unbounded
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Canvas        CanvasConfig  `yaml:"canvas"`
	History       HistoryConfig `yaml:"history"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Setting ranges.
const (
	MinBrushSize   = 1
	MaxBrushSize   = 250
	MinGridSize    = 1
	MaxGridSize    = 512
	MinWorkingSize = 64
	MaxWorkingSize = 4096
)

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system", NSFWFilter: true, ResizeOnPaste: false},
		Canvas: CanvasConfig{
			GridSize: 64, SnapToGrid: false, ShowGrid: true, BrushSize: 10,
			PrimaryColor: "#ffffff", SecondaryColor: "#000000", CanvasColor: "#000000",
			WorkingWidth: 512, WorkingHeight: 512,
		},
		History: HistoryConfig{MaxDepth: 0},
		Backend: BackendConfig{BaseURL: "http://localhost:5000", TimeoutMs: 120000, RatePerSec: 1, BreakerFailures: 3},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvBackendURL       = "AIR_BACKEND_URL"
	EnvBackendTimeoutMs = "AIR_BACKEND_TIMEOUT_MS"
	EnvBackendRate      = "AIR_BACKEND_RATE"
	EnvTelemetryOptIn   = "AIR_TELEMETRY_OPT_IN"
	EnvNSFWFilter       = "AIR_NSFW_FILTER"
	EnvHistoryMaxDepth  = "AIR_HISTORY_MAX_DEPTH"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "AIR_LOG_LEVEL"
	EnvLogFormat = "AIR_LOG_FORMAT"
	EnvLogSource = "AIR_LOG_SOURCE"
	EnvLogFile   = "AIR_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "AIRunner"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// DeleteToken removes the stored backend token. A missing token is not an error.
func DeleteToken() error {
	if err := tokenStore.Delete(keyringService, keyringToken); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "AIRunner")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "AIRunner")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "airunner")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	cfg.Normalize()
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: src starts from defaults, so absent keys keep their default
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.NSFWFilter = src.General.NSFWFilter
	dst.General.ResizeOnPaste = src.General.ResizeOnPaste
	dst.Canvas.SnapToGrid = src.Canvas.SnapToGrid
	dst.Canvas.ShowGrid = src.Canvas.ShowGrid
	if src.Canvas.GridSize != 0 {
		dst.Canvas.GridSize = src.Canvas.GridSize
	}
	if src.Canvas.BrushSize != 0 {
		dst.Canvas.BrushSize = src.Canvas.BrushSize
	}
	for _, p := range [][2]*string{
		{&dst.Canvas.PrimaryColor, &src.Canvas.PrimaryColor},
		{&dst.Canvas.SecondaryColor, &src.Canvas.SecondaryColor},
		{&dst.Canvas.CanvasColor, &src.Canvas.CanvasColor},
	} {
		if v := strings.TrimSpace(*p[1]); v != "" {
			*p[0] = v
		}
	}
	if src.Canvas.WorkingWidth != 0 {
		dst.Canvas.WorkingWidth = src.Canvas.WorkingWidth
	}
	if src.Canvas.WorkingHeight != 0 {
		dst.Canvas.WorkingHeight = src.Canvas.WorkingHeight
	}
	dst.History.MaxDepth = src.History.MaxDepth
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Backend.RatePerSec != 0 {
		dst.Backend.RatePerSec = src.Backend.RatePerSec
	}
	if src.Backend.BreakerFailures != 0 {
		dst.Backend.BreakerFailures = src.Backend.BreakerFailures
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendRate)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backend.RatePerSec = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvNSFWFilter)); v != "" {
		cfg.General.NSFWFilter = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryMaxDepth)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.MaxDepth = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"backend.base_url":         EnvBackendURL,
		"backend.timeout_ms":       EnvBackendTimeoutMs,
		"backend.rate_per_sec":     EnvBackendRate,
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"general.nsfw_filter":      EnvNSFWFilter,
		"history.max_depth":        EnvHistoryMaxDepth,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}[key]
	if env != "" && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Normalize replaces out-of-range settings with their defaults.
func (c *AppConfig) Normalize() {
	d := Defaults()
	if c.Canvas.BrushSize < MinBrushSize || c.Canvas.BrushSize > MaxBrushSize {
		c.Canvas.BrushSize = d.Canvas.BrushSize
	}
	if c.Canvas.GridSize < MinGridSize || c.Canvas.GridSize > MaxGridSize {
		c.Canvas.GridSize = d.Canvas.GridSize
	}
	if !validWorkingSize(c.Canvas.WorkingWidth) {
		c.Canvas.WorkingWidth = d.Canvas.WorkingWidth
	}
	if !validWorkingSize(c.Canvas.WorkingHeight) {
		c.Canvas.WorkingHeight = d.Canvas.WorkingHeight
	}
	for _, p := range [][2]*string{
		{&c.Canvas.PrimaryColor, &d.Canvas.PrimaryColor},
		{&c.Canvas.SecondaryColor, &d.Canvas.SecondaryColor},
		{&c.Canvas.CanvasColor, &d.Canvas.CanvasColor},
	} {
		if _, err := ParseColor(*p[0]); err != nil {
			*p[0] = *p[1]
		}
	}
	if c.History.MaxDepth < 0 {
		c.History.MaxDepth = 0
	}
	if c.Backend.TimeoutMs <= 0 {
		c.Backend.TimeoutMs = d.Backend.TimeoutMs
	}
	if c.Backend.RatePerSec < 0 {
		c.Backend.RatePerSec = 0
	}
	if c.Backend.BreakerFailures <= 0 {
		c.Backend.BreakerFailures = d.Backend.BreakerFailures
	}
}

func validWorkingSize(n int) bool {
	return n >= MinWorkingSize && n <= MaxWorkingSize && n%8 == 0
}

// ParseColor parses "#rrggbb" (the leading # is optional).
func ParseColor(s string) (domain.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return domain.Color{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return domain.Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return domain.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// WorkingRegion is the default active region for a new document.
func (c CanvasConfig) WorkingRegion() domain.Rect {
	return domain.Rect{Width: c.WorkingWidth, Height: c.WorkingHeight}
}

// Timeout returns the backend timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
