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
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Canvas        CanvasConfig   `yaml:"canvas"`
	Autosave      AutosaveConfig `yaml:"autosave"`
	Storage       StorageConfig  `yaml:"storage"`
	Logging       LoggingConfig  `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	// Token is not stored on disk; it lives in the OS keychain.
}

// CanvasConfig tunes the interaction controller.
type CanvasConfig struct {
	HistoryMaxSize     int     `yaml:"history_max_size"`
	TrackScaling       bool    `yaml:"track_scaling"`
	PasteOffset        float64 `yaml:"paste_offset"`
	ImageDisplayHeight float64 `yaml:"image_display_height"`
	LayoutGap          float64 `yaml:"layout_gap"`
	LoadTimeoutMs      int     `yaml:"load_timeout_ms"`
	AnimationMs        int     `yaml:"animation_ms"`
}

type AutosaveConfig struct {
	ThrottleMs   int `yaml:"throttle_ms"`
	MaxRetries   int `yaml:"max_retries"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

type StorageConfig struct {
	// DatabasePath defaults to <data dir>/refer.sqlite when empty.
	DatabasePath  string `yaml:"database_path"`
	InboxDir      string `yaml:"inbox_dir"`
	RevisionKeep  int    `yaml:"revision_keep"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system"},
		Canvas: CanvasConfig{
			HistoryMaxSize:     30,
			TrackScaling:       false,
			PasteOffset:        20,
			ImageDisplayHeight: 300,
			LayoutGap:          20,
			LoadTimeoutMs:      15000,
			AnimationMs:        300,
		},
		Autosave: AutosaveConfig{ThrottleMs: 5000, MaxRetries: 3, RetryDelayMs: 1000},
		Storage:  StorageConfig{RevisionKeep: 20, PruneSchedule: "@every 10m"},
		Logging:  LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvTelemetryOptIn = "REFER_TELEMETRY_OPT_IN"
	EnvHistoryMaxSize = "REFER_HISTORY_MAX_SIZE"
	EnvTrackScaling   = "REFER_TRACK_SCALING"
	EnvLoadTimeoutMs  = "REFER_LOAD_TIMEOUT_MS"
	EnvDatabasePath   = "REFER_DB"
	EnvInboxDir       = "REFER_INBOX"
	EnvAutosaveMs     = "REFER_AUTOSAVE_MS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "REFER_LOG_LEVEL"
	EnvLogFormat = "REFER_LOG_FORMAT"
	EnvLogSource = "REFER_LOG_SOURCE"
	EnvLogFile   = "REFER_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "ReferCanvas"
	keyringToken   = "telemetry_token"
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

func (osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}
func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error {
	if err := keyring.Delete(service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// AppDir returns the per-user application directory holding config and data.
func AppDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ReferCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ReferCanvas")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "refercanvas")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "refercanvas")
		}
	}
	if base == "" || base == "ReferCanvas" || base == "refercanvas" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DatabasePath resolves the sqlite document store location.
func (c AppConfig) DatabasePath() (string, error) {
	if p := strings.TrimSpace(c.Storage.DatabasePath); p != "" {
		return p, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "refer.sqlite"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the telemetry token from keyring (returned separately, never kept in the struct).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
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
			return err
		}
	}
	return nil
}

// ForgetToken removes the telemetry token from the OS keyring.
func ForgetToken() error { return tokenStore.Delete(keyringService, keyringToken) }

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn

	// canvas: zero means "not set" for numbers
	if src.Canvas.HistoryMaxSize > 0 {
		dst.Canvas.HistoryMaxSize = src.Canvas.HistoryMaxSize
	}
	dst.Canvas.TrackScaling = src.Canvas.TrackScaling
	if src.Canvas.PasteOffset > 0 {
		dst.Canvas.PasteOffset = src.Canvas.PasteOffset
	}
	if src.Canvas.ImageDisplayHeight > 0 {
		dst.Canvas.ImageDisplayHeight = src.Canvas.ImageDisplayHeight
	}
	if src.Canvas.LayoutGap > 0 {
		dst.Canvas.LayoutGap = src.Canvas.LayoutGap
	}
	if src.Canvas.LoadTimeoutMs > 0 {
		dst.Canvas.LoadTimeoutMs = src.Canvas.LoadTimeoutMs
	}
	if src.Canvas.AnimationMs > 0 {
		dst.Canvas.AnimationMs = src.Canvas.AnimationMs
	}

	if src.Autosave.ThrottleMs > 0 {
		dst.Autosave.ThrottleMs = src.Autosave.ThrottleMs
	}
	if src.Autosave.MaxRetries > 0 {
		dst.Autosave.MaxRetries = src.Autosave.MaxRetries
	}
	if src.Autosave.RetryDelayMs > 0 {
		dst.Autosave.RetryDelayMs = src.Autosave.RetryDelayMs
	}

	if strings.TrimSpace(src.Storage.DatabasePath) != "" {
		dst.Storage.DatabasePath = strings.TrimSpace(src.Storage.DatabasePath)
	}
	if strings.TrimSpace(src.Storage.InboxDir) != "" {
		dst.Storage.InboxDir = strings.TrimSpace(src.Storage.InboxDir)
	}
	if src.Storage.RevisionKeep > 0 {
		dst.Storage.RevisionKeep = src.Storage.RevisionKeep
	}
	if strings.TrimSpace(src.Storage.PruneSchedule) != "" {
		dst.Storage.PruneSchedule = strings.TrimSpace(src.Storage.PruneSchedule)
	}

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

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryMaxSize)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Canvas.HistoryMaxSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTrackScaling)); v != "" {
		cfg.Canvas.TrackScaling = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLoadTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Canvas.LoadTimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabasePath)); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvInboxDir)); v != "" {
		cfg.Storage.InboxDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAutosaveMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Autosave.ThrottleMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envByKey = map[string]string{
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"canvas.history_max_size":  EnvHistoryMaxSize,
	"canvas.track_scaling":     EnvTrackScaling,
	"canvas.load_timeout_ms":   EnvLoadTimeoutMs,
	"storage.database_path":    EnvDatabasePath,
	"storage.inbox_dir":        EnvInboxDir,
	"autosave.throttle_ms":     EnvAutosaveMs,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envByKey[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// LoadTimeout is the per-image resolution timeout; zero disables it.
func (c CanvasConfig) LoadTimeout() time.Duration {
	if c.LoadTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.LoadTimeoutMs) * time.Millisecond
}

// AnimationDuration is the duration of fit/restore transitions.
func (c CanvasConfig) AnimationDuration() time.Duration {
	if c.AnimationMs <= 0 {
		return 0
	}
	return time.Duration(c.AnimationMs) * time.Millisecond
}

// Throttle returns the autosave throttle window, falling back to the default.
func (a AutosaveConfig) Throttle() time.Duration {
	if a.ThrottleMs <= 0 {
		return time.Duration(Defaults().Autosave.ThrottleMs) * time.Millisecond
	}
	return time.Duration(a.ThrottleMs) * time.Millisecond
}

// RetryDelay returns the fixed delay between autosave retries.
func (a AutosaveConfig) RetryDelay() time.Duration {
	if a.RetryDelayMs <= 0 {
		return time.Duration(Defaults().Autosave.RetryDelayMs) * time.Millisecond
	}
	return time.Duration(a.RetryDelayMs) * time.Millisecond
}
