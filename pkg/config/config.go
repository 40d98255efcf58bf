package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime settings. Values come from the workspace
// config.json first, then environment variables override field by field.
type Config struct {
	Workspace     string       `json:"workspace" env:"TWIN_WORKSPACE"`
	Addr          string       `json:"addr" env:"TWIN_ADDR"`
	HistoryWindow int          `json:"history_window" env:"TWIN_HISTORY_WINDOW"`
	Gemini        GeminiConfig `json:"gemini"`
	Speech        SpeechConfig `json:"speech"`
}

// GeminiConfig holds hosted model settings.
type GeminiConfig struct {
	APIKey  string `json:"api_key" env:"GEMINI_API_KEY"`
	APIBase string `json:"api_base" env:"TWIN_GEMINI_API_BASE"`
	Model   string `json:"model" env:"TWIN_GEMINI_MODEL"`
}

// SpeechConfig holds the fallback speech-recognition engine settings.
// The primary transcription tier always runs through the Gemini credentials.
type SpeechConfig struct {
	Endpoint string `json:"endpoint" env:"TWIN_SPEECH_ENDPOINT"`
	Language string `json:"language" env:"TWIN_SPEECH_LANGUAGE"`
	APIKey   string `json:"api_key" env:"TWIN_SPEECH_API_KEY"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace:     "~/.twin",
		Addr:          ":8080",
		HistoryWindow: 6,
		Gemini: GeminiConfig{
			APIBase: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-2.0-flash",
		},
		Speech: SpeechConfig{
			Endpoint: "http://www.google.com/speech-api/v2/recognize",
			Language: "de-DE",
		},
	}
}

// Load builds the effective configuration: defaults, then the workspace
// config.json if present, then environment overrides, then the secrets
// file fallback for the API key.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	workspace := strings.TrimSpace(os.Getenv("TWIN_WORKSPACE"))
	if workspace == "" {
		workspace = cfg.Workspace
	}
	workspace = expandHome(workspace)
	cfg.Workspace = workspace

	configPath := filepath.Join(workspace, "config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Workspace = expandHome(cfg.Workspace)

	if cfg.HistoryWindow < 2 {
		cfg.HistoryWindow = 2
	}

	// API key resolution order: environment, then workspace secrets file.
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		cfg.Gemini.APIKey = readSecret(cfg.Workspace, "GEMINI_API_KEY")
	}

	return cfg, nil
}

// Validate reports fatal startup conditions.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set: export it, add it to .env, or put it in %s", filepath.Join(c.Workspace, "secrets.json"))
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("listen address is empty")
	}
	return nil
}

// DBPath is the SQLite conversation store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.Workspace, "state", "twin.db")
}

// PersonaPath is the optional persona override file.
func (c *Config) PersonaPath() string {
	return filepath.Join(c.Workspace, "persona.txt")
}

func readSecret(workspace, key string) string {
	data, err := os.ReadFile(filepath.Join(workspace, "secrets.json"))
	if err != nil {
		return ""
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return ""
	}
	return strings.TrimSpace(secrets[key])
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}
