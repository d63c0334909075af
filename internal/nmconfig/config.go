// Package nmconfig loads and merges the launcher's JSON configuration
// (§6): a base runtime_config.json, an optional runtime_user.json overlay
// restricted to the "runtime domain" (window, audio, text,
// localization.currentLocale, input.bindings), an environment-variable
// overlay via github.com/caarlos0/env/v6, and an optional
// novelmind.project.yaml for build-time project metadata.
package nmconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// GameConfig is the "game" section of runtime_config.json.
type GameConfig struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	BasePath    string `json:"basePath"`
	StartScene  string `json:"startScene"`
	DebugMode   bool   `json:"debugMode"`
}

// WindowConfig is the "window" section.
type WindowConfig struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Fullscreen bool `json:"fullscreen"`
	Windowed   bool `json:"windowed"`
	VSync      bool `json:"vsync"`
}

// AudioConfig is the "audio" section.
type AudioConfig struct {
	MasterVolume float64 `json:"masterVolume"`
	MusicVolume  float64 `json:"musicVolume"`
	SfxVolume    float64 `json:"sfxVolume"`
	VoiceVolume  float64 `json:"voiceVolume"`
}

// TextConfig is the "text" section: dialogue presentation settings.
type TextConfig struct {
	TextSpeed  float64 `json:"textSpeed"`
	AutoAdvance bool   `json:"autoAdvance"`
	SkipRead   bool    `json:"skipRead"`
}

// LocalizationConfig is the "localization" section.
type LocalizationConfig struct {
	CurrentLocale  string   `json:"currentLocale"`
	FallbackLocale string   `json:"fallbackLocale"`
	Available      []string `json:"available"`
}

// PackEntry mirrors one entry of packs_index.json (§6).
type PackEntry struct {
	Path     string `json:"path"`
	Type     string `json:"type"` // base|patch|dlc|language|mod
	Priority int32  `json:"priority"`
}

// PacksConfig is the "packs" section.
type PacksConfig struct {
	Directory string      `json:"directory"`
	Entries   []PackEntry `json:"entries"`
}

// SavesConfig is the "saves" section.
type SavesConfig struct {
	Directory  string `json:"directory"`
	AutosaveOn bool   `json:"autosaveOn"`
	MaxSlots   int    `json:"maxSlots"`
}

// LoggingConfig is the "logging" section.
type LoggingConfig struct {
	Level    string `json:"level"`
	Directory string `json:"directory"`
	Verbose  bool   `json:"verbose"`
}

// DebugConfig is the "debug" section.
type DebugConfig struct {
	Enabled         bool `json:"enabled"`
	ShowFPS         bool `json:"showFps"`
	AllowDevConsole bool `json:"allowDevConsole"`
}

// InputConfig is the "input" section.
type InputConfig struct {
	Bindings map[string]string `json:"bindings"`
}

// Config is the fully merged runtime configuration (§6
// "runtime_config.json / runtime_user.json").
type Config struct {
	Game          GameConfig          `json:"game"`
	Window        WindowConfig        `json:"window"`
	Audio         AudioConfig         `json:"audio"`
	Text          TextConfig          `json:"text"`
	Localization  LocalizationConfig  `json:"localization"`
	Packs         PacksConfig         `json:"packs"`
	Saves         SavesConfig         `json:"saves"`
	Logging       LoggingConfig       `json:"logging"`
	Debug         DebugConfig         `json:"debug"`
	Input         InputConfig         `json:"input"`
}

// EnvOverrides captures the environment variables §6 documents for pack
// encryption/signing; LoadEnvOverrides reads them separately from Load
// since they carry key material, not runtime settings (kept out of Config
// itself so a debug dump of Config can never leak a key).
type EnvOverrides struct {
	PackAESKeyHex  string `env:"NOVELMIND_PACK_AES_KEY_HEX"`
	PackAESKeyFile string `env:"NOVELMIND_PACK_AES_KEY_FILE"`
	PackPublicKey  string `env:"NOVELMIND_PACK_PUBLIC_KEY"`
}

// LoadEnvOverrides parses the pack-related environment variables.
func LoadEnvOverrides() (EnvOverrides, error) {
	var eo EnvOverrides
	if err := env.Parse(&eo); err != nil {
		return EnvOverrides{}, fmt.Errorf("nmconfig: parsing environment: %w", err)
	}
	return eo, nil
}

// Load reads basePath as the base runtime_config.json, optionally merges
// userPath (runtime_user.json) on top restricted to the runtime domain
// (§6). It reads no environment variables; see LoadEnvOverrides for those.
// userPath may be empty, meaning no user override file exists
// yet (first run).
func Load(basePath, userPath string) (*Config, error) {
	cfg := Default()

	base, err := os.ReadFile(basePath)
	if err != nil {
		return nil, fmt.Errorf("nmconfig: reading base config %s: %w", basePath, err)
	}
	if err := json.Unmarshal(base, cfg); err != nil {
		return nil, fmt.Errorf("nmconfig: parsing base config %s: %w", basePath, err)
	}

	if userPath != "" {
		if userBytes, err := os.ReadFile(userPath); err == nil {
			var overlay Config
			if err := json.Unmarshal(userBytes, &overlay); err != nil {
				return nil, fmt.Errorf("nmconfig: parsing user config %s: %w", userPath, err)
			}
			mergeRuntimeDomain(cfg, &overlay)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("nmconfig: reading user config %s: %w", userPath, err)
		}
	}

	return cfg, nil
}

// Default returns the built-in defaults applied before any file is read.
func Default() *Config {
	return &Config{
		Window: WindowConfig{Width: 1280, Height: 720, VSync: true},
		Audio:  AudioConfig{MasterVolume: 1, MusicVolume: 1, SfxVolume: 1, VoiceVolume: 1},
		Text:   TextConfig{TextSpeed: 1, AutoAdvance: false},
		Localization: LocalizationConfig{
			CurrentLocale:  "en",
			FallbackLocale: "en",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// mergeRuntimeDomain overlays only the fields §6 calls the "runtime domain":
// window, audio, text, localization.currentLocale, input.bindings. Anything
// outside that domain in a user file (game, packs, saves, logging, debug) is
// intentionally ignored — those are launcher/build concerns, not something a
// player's local override file should be able to change.
func mergeRuntimeDomain(base, overlay *Config) {
	base.Window = overlay.Window
	base.Audio = overlay.Audio
	base.Text = overlay.Text
	if overlay.Localization.CurrentLocale != "" {
		base.Localization.CurrentLocale = overlay.Localization.CurrentLocale
	}
	if overlay.Input.Bindings != nil {
		base.Input.Bindings = overlay.Input.Bindings
	}
}

// ProjectFile is the optional novelmind.project.yaml read by the pack
// builder and editor tooling (build-time project metadata: source
// directories, deterministic-build settings, compression/encryption
// defaults — not part of the player-facing runtime config above).
type ProjectFile struct {
	Name             string   `yaml:"name"`
	ScriptDirs       []string `yaml:"scriptDirs"`
	AssetDirs        []string `yaml:"assetDirs"`
	OutputPack       string   `yaml:"outputPack"`
	DeterministicBuild bool   `yaml:"deterministicBuild"`
	FixedRandomSeed  int64    `yaml:"fixedRandomSeed"`
	FixedTimestamp   int64    `yaml:"fixedTimestamp"`
	CompressionLevel string   `yaml:"compressionLevel"` // none|fast|balanced|max
	Encrypt          bool     `yaml:"encrypt"`
	Sign             bool     `yaml:"sign"`

	// Platform/BuildType/code-signing fields round-trip the project manifest
	// the original build system carried (BuildConfig); the pack builder
	// records them on the build result but never invokes a platform signing
	// tool or bundler itself.
	Platform             string `yaml:"platform"`  // windows|linux|macos|web|android|ios|all
	BuildType            string `yaml:"buildType"`  // debug|release|distribution
	SignExecutable       bool   `yaml:"signExecutable"`
	SigningCertificate   string `yaml:"signingCertificate"`
	SigningPassword      string `yaml:"signingPassword"`
	SigningEntitlements  string `yaml:"signingEntitlements"`
	SigningTeamID        string `yaml:"signingTeamId"`
	SigningTimestampURL  string `yaml:"signingTimestampUrl"`
}

// LoadProjectFile parses novelmind.project.yaml at path.
func LoadProjectFile(path string) (*ProjectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nmconfig: reading project file %s: %w", path, err)
	}
	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("nmconfig: parsing project file %s: %w", path, err)
	}
	return &pf, nil
}
