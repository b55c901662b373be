package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/settings"
)

// ConfigFileName is the name of the config file
const ConfigFileName = "config.yaml"

// ProjectConfigDir holds per-project config next to the code
const ProjectConfigDir = ".atlasai"

// FileConfig represents the configuration file structure
type FileConfig struct {
	// Backends, in preference order unless Preference says otherwise
	Providers []ProviderEntry `yaml:"providers,omitempty"`

	// Preference lists provider ids, most preferred first
	Preference []string `yaml:"preference,omitempty"`

	MultiProvider bool   `yaml:"multi_provider,omitempty"`
	MaxSteps      int    `yaml:"max_steps,omitempty"`
	Language      string `yaml:"language,omitempty"` // "en" or "es"
	ToolTimeout   string `yaml:"tool_timeout,omitempty"`

	// Web search settings
	WebSearch *WebSearchConfig `yaml:"web_search,omitempty"`

	// Extra safety patterns, merged with settings.json rules
	Safety *settings.Safety `yaml:"safety,omitempty"`

	// Default flags
	Defaults *DefaultsConfig `yaml:"defaults,omitempty"`
}

// ProviderEntry is one backend in the config file
type ProviderEntry struct {
	ID          string  `yaml:"id,omitempty"`
	Kind        string  `yaml:"kind"` // ollama, openai, gemini, azure
	Model       string  `yaml:"model,omitempty"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	AuthRef     string  `yaml:"auth_ref,omitempty"` // env:NAME or store:NAME
	Timeout     string  `yaml:"timeout,omitempty"`  // Go duration, e.g. 90s
	MaxRetries  *int    `yaml:"max_retries,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// WebSearchConfig holds web search configuration
type WebSearchConfig struct {
	Provider   string   `yaml:"provider,omitempty"` // "duckduckgo", "brave", "tavily"
	BraveKeys  []string `yaml:"brave_keys,omitempty"`
	TavilyKeys []string `yaml:"tavily_keys,omitempty"`
}

// DefaultsConfig holds default flag values
type DefaultsConfig struct {
	Render    bool `yaml:"render,omitempty"`
	JSON      bool `yaml:"json,omitempty"`
	WebSearch bool `yaml:"web_search,omitempty"`
}

// GetConfigPaths returns the paths to check for config files (in order of priority)
func GetConfigPaths() []string {
	var paths []string

	// 1. Current directory
	paths = append(paths, filepath.Join(".", ProjectConfigDir, ConfigFileName))

	// 2. User config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, constants.AppName, ConfigFileName))
	}

	// 3. Home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", constants.AppName, ConfigFileName))
	}

	return paths
}

// LoadConfigFile loads the first config file found on the search path. It
// returns an empty config and "" when there is none.
func LoadConfigFile() (*FileConfig, string, error) {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadConfigFromPath(path)
			return cfg, path, err
		}
	}

	// No config file found, return empty config
	return &FileConfig{}, "", nil
}

// LoadConfigFromPath loads config from a specific path
func LoadConfigFromPath(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyFileConfig applies file configuration to the main Config
// File config has lower priority than environment variables and CLI flags
func (c *Config) ApplyFileConfig(fc *FileConfig) error {
	if fc == nil {
		return nil
	}

	for i, p := range fc.Providers {
		pc, err := p.toProviderConfig()
		if err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		c.Providers = append(c.Providers, pc)
	}
	if len(c.Preference) == 0 {
		c.Preference = append([]string(nil), fc.Preference...)
	}

	if fc.MultiProvider {
		c.MultiProvider = true
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = fc.MaxSteps
	}
	if c.Language == "" {
		c.Language = fc.Language
	}
	if c.ToolTimeout == 0 && fc.ToolTimeout != "" {
		d, err := parseDuration("tool_timeout", fc.ToolTimeout)
		if err != nil {
			return err
		}
		c.ToolTimeout = d
	}

	// Web search config
	if fc.WebSearch != nil {
		if c.WebSearchProvider == "" {
			c.WebSearchProvider = fc.WebSearch.Provider
		}
		c.fileBraveKeys = fc.WebSearch.BraveKeys
		c.fileTavilyKeys = fc.WebSearch.TavilyKeys
	}

	if fc.Safety != nil {
		c.FileSafety = *fc.Safety
	}

	// Since we can't distinguish between "flag not set" and "flag set to false",
	// we apply defaults only for "true" values in the config file
	if fc.Defaults != nil {
		if fc.Defaults.Render {
			c.Render = true
		}
		if fc.Defaults.JSON {
			c.JSON = true
		}
		if fc.Defaults.WebSearch {
			c.WebSearch = true
		}
	}
	return nil
}

func (p ProviderEntry) toProviderConfig() (api.ProviderConfig, error) {
	pc := api.ProviderConfig{
		ID:          p.ID,
		Kind:        p.Kind,
		Model:       p.Model,
		Endpoint:    p.Endpoint,
		AuthRef:     p.AuthRef,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		MaxRetries:  constants.DefaultMaxRetries,
	}
	if p.MaxRetries != nil {
		pc.MaxRetries = *p.MaxRetries
	}
	if p.Timeout != "" {
		d, err := parseDuration("timeout", p.Timeout)
		if err != nil {
			return pc, err
		}
		pc.Timeout = d
	}
	return pc.Normalize(), nil
}

// CreateDefaultConfigFile creates a default config file at the user config directory
func CreateDefaultConfigFile() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, constants.AppName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

const defaultConfig = `# atlasai configuration
# Location: ~/.config/atlasai/config.yaml

# Backends, tried in order (or see 'preference').
# Without any provider, a local ollama on qwen3:8b is used.
providers:
  - id: local
    kind: ollama
    model: qwen3:8b
    # endpoint: http://localhost:11434
    # timeout: 120s
    # max_retries: 2

#  - id: cloud
#    kind: openai            # ollama, openai, gemini, or azure
#    model: gpt-4.1-mini
#    auth_ref: store:openai  # env:OPENAI_API_KEY also works; 'atlasai auth login openai'

#  - id: gemini
#    kind: gemini
#    model: gemini-2.5-flash
#    auth_ref: env:GEMINI_API_KEY

#  - id: azure
#    kind: azure
#    endpoint: https://your-resource.openai.azure.com
#    model: gpt-4o
#    auth_ref: store:azure

# preference: [cloud, local]

# Ask every provider at once and rank all answers
# multi_provider: false

# Planning steps per provider before the answer is forced
# max_steps: 5

# Language of explanations: en or es
# language: en

# tool_timeout: 20s

# Web search tool (used with --web)
# web_search:
#   provider: duckduckgo   # duckduckgo, brave, or tavily
#   brave_keys:
#     - your-brave-key
#   tavily_keys:
#     - your-tavily-key

# Extra safety patterns on top of the built-in classifier
# safety:
#   destructive:
#     - pattern: "helm uninstall*"
#       reason: removes a release
#   caution:
#     - pattern: "docker compose down"

# Default flags
# defaults:
#   render: true
#   json: false
#   web_search: false
`
