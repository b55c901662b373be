package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points every config location at a fresh temp dir and clears the
// environment variables config reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, env := range []string{EnvProviders, EnvModel, EnvOllamaHost, EnvBraveAPIKeys, EnvTavilyAPIKeys, EnvWebSearchProvider, EnvAzureEndpoint} {
		t.Setenv(env, "")
	}
	t.Chdir(dir)
	return dir
}

// createTempConfigFile creates a project config file for testing
func createTempConfigFile(t *testing.T, dir, content string) string {
	t.Helper()

	configDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	return configPath
}

func TestLoadConfigFromPath_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
providers:
  - id: local
    kind: ollama
    model: llama3.1
  - id: cloud
    kind: openai
    auth_ref: store:openai
    timeout: 45s
    max_retries: 0

preference: [cloud, local]
multi_provider: true
max_steps: 3
language: es

web_search:
  provider: brave
  brave_keys:
    - k1

safety:
  destructive:
    - pattern: "helm uninstall*"
      reason: removes a release

defaults:
  render: true
`
	configPath := createTempConfigFile(t, tmpDir, configContent)

	fc, err := LoadConfigFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadConfigFromPath() error = %v", err)
	}

	if len(fc.Providers) != 2 || fc.Providers[1].AuthRef != "store:openai" {
		t.Errorf("Providers = %+v", fc.Providers)
	}
	if fc.Providers[1].MaxRetries == nil || *fc.Providers[1].MaxRetries != 0 {
		t.Error("explicit max_retries: 0 should be kept")
	}
	if !fc.MultiProvider || fc.MaxSteps != 3 || fc.Language != "es" {
		t.Errorf("MultiProvider/MaxSteps/Language = %v/%v/%v", fc.MultiProvider, fc.MaxSteps, fc.Language)
	}
	if fc.WebSearch == nil || fc.WebSearch.Provider != "brave" || len(fc.WebSearch.BraveKeys) != 1 {
		t.Errorf("WebSearch = %+v", fc.WebSearch)
	}
	if fc.Safety == nil || len(fc.Safety.Destructive) != 1 || fc.Safety.Destructive[0].Reason != "removes a release" {
		t.Errorf("Safety = %+v", fc.Safety)
	}
	if fc.Defaults == nil || !fc.Defaults.Render {
		t.Error("Defaults.Render should be true")
	}
}

func TestLoadConfigFromPath_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := createTempConfigFile(t, tmpDir, "providers: [unclosed")

	if _, err := LoadConfigFromPath(configPath); err == nil {
		t.Error("LoadConfigFromPath() should return error for invalid YAML")
	}
}

func TestLoadConfigFromPath_NotFound(t *testing.T) {
	if _, err := LoadConfigFromPath("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadConfigFromPath() should return error for missing file")
	}
}

func TestLoadConfigFile_NoConfigFile(t *testing.T) {
	isolate(t)

	fc, path, err := LoadConfigFile()
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if fc == nil || path != "" {
		t.Errorf("LoadConfigFile() = %v, %q, want empty config and no path", fc, path)
	}
}

func TestLoadConfigFile_CurrentDirectory(t *testing.T) {
	dir := isolate(t)
	createTempConfigFile(t, dir, "max_steps: 7")

	fc, path, err := LoadConfigFile()
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if fc.MaxSteps != 7 {
		t.Errorf("MaxSteps = %d, want 7", fc.MaxSteps)
	}
	if path != filepath.Join(".", ProjectConfigDir, ConfigFileName) {
		t.Errorf("path = %q", path)
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := GetConfigPaths()

	if len(paths) == 0 {
		t.Fatal("GetConfigPaths() should return at least one path")
	}

	// First path should be current directory
	if paths[0] != filepath.Join(".", ProjectConfigDir, ConfigFileName) {
		t.Errorf("First path = %q, want current directory path", paths[0])
	}

	for i, p := range paths {
		if filepath.Base(p) != ConfigFileName {
			t.Errorf("Path %d = %q, should end with %q", i, p, ConfigFileName)
		}
	}
}

func TestConfig_ApplyFileConfig_Nil(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ApplyFileConfig(nil); err != nil {
		t.Errorf("ApplyFileConfig(nil) error = %v", err)
	}
}

func TestConfig_ApplyFileConfig_Providers(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ApplyFileConfig(&FileConfig{
		Providers: []ProviderEntry{
			{Kind: "Ollama"},
			{ID: "cloud", Kind: "openai", Timeout: "30s"},
		},
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}

	local := cfg.Providers[0]
	if local.ID != "ollama" || local.Model != DefaultModel || local.Mode != "local" {
		t.Errorf("normalized provider = %+v", local)
	}
	if local.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want default 2", local.MaxRetries)
	}
	if cfg.Providers[1].Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Providers[1].Timeout)
	}
}

func TestConfig_ApplyFileConfig_BadDuration(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ApplyFileConfig(&FileConfig{Providers: []ProviderEntry{{Kind: "ollama", Timeout: "soon"}}})
	if err == nil {
		t.Error("ApplyFileConfig() should reject an invalid timeout")
	}
}

func TestConfig_ApplyFileConfig_NoOverwrite(t *testing.T) {
	cfg := &Config{MaxSteps: 2, Language: "en", WebSearchProvider: "tavily"}
	err := cfg.ApplyFileConfig(&FileConfig{
		MaxSteps:  9,
		Language:  "es",
		WebSearch: &WebSearchConfig{Provider: "brave"},
		Defaults:  &DefaultsConfig{JSON: true, WebSearch: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxSteps != 2 || cfg.Language != "en" || cfg.WebSearchProvider != "tavily" {
		t.Errorf("flag values were overwritten: %+v", cfg)
	}
	if !cfg.JSON || !cfg.WebSearch {
		t.Error("true defaults from the file should apply")
	}
}

func TestCreateDefaultConfigFile_Success(t *testing.T) {
	dir := isolate(t)

	path, err := CreateDefaultConfigFile()
	if err != nil {
		t.Fatalf("CreateDefaultConfigFile() error = %v", err)
	}
	if path != filepath.Join(dir, "xdg", "atlasai", ConfigFileName) {
		t.Errorf("path = %q", path)
	}

	// The default file must parse and carry the local provider
	fc, err := LoadConfigFromPath(path)
	if err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	if len(fc.Providers) != 1 || fc.Providers[0].Kind != "ollama" {
		t.Errorf("Providers = %+v, want the local ollama", fc.Providers)
	}
}

func TestCreateDefaultConfigFile_AlreadyExists(t *testing.T) {
	isolate(t)

	if _, err := CreateDefaultConfigFile(); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateDefaultConfigFile(); err == nil {
		t.Error("CreateDefaultConfigFile() should return error when file exists")
	}
}
