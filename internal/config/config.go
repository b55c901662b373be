package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
	"github.com/atlasserver/atlasai/internal/settings"
)

// Environment variable names
const (
	// Provider selection
	EnvProviders = "ATLASAI_PROVIDERS"
	EnvModel     = "ATLASAI_MODEL"

	// Diagnostics
	EnvLogLevel = "ATLASAI_LOG_LEVEL"

	// Local engine
	EnvOllamaHost = "OLLAMA_HOST"

	// Implicit hosted providers (used when --provider names a kind that is
	// not configured)
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvAzureEndpoint = "AZURE_OPENAI_ENDPOINT"
	EnvAzureAPIKey   = "AZURE_OPENAI_API_KEY"

	// Web search settings
	EnvTavilyAPIKeys     = "TAVILY_API_KEYS"
	EnvBraveAPIKeys      = "BRAVE_API_KEYS"
	EnvWebSearchProvider = "WEB_SEARCH_PROVIDER"
)

// Defaults - re-exported from constants for convenience
const (
	DefaultModel          = constants.DefaultLocalModel
	DefaultSearchProvider = constants.DefaultSearchProvider
	DefaultLanguage       = constants.DefaultLanguage
	DefaultProviderID     = "local"
)

// Errors
var (
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrEndpointNotFound      = errors.New("Azure endpoint not found. Set AZURE_OPENAI_ENDPOINT environment variable")
	ErrInvalidLanguage       = errors.New("invalid language. Use 'en' or 'es'")
	ErrWebSearchKeyNotFound  = errors.New("web search API key not found. Set TAVILY_API_KEYS or BRAVE_API_KEYS, or use the duckduckgo provider")
	ErrInvalidSearchProvider = api.ErrInvalidSearchProvider
)

// Config holds the application configuration. Flags are written into it
// first; Validate then fills the gaps from the environment and the config
// file, and Build freezes it into an agent.Config.
type Config struct {
	// ConfigPath forces a config file instead of the search path
	ConfigPath string
	// ConfigFile is the file actually loaded, "" if none
	ConfigFile string

	// Providers from the config file (normalized)
	Providers  []api.ProviderConfig
	Preference []string

	// Provider selects provider ids (comma-separated), Model overrides the
	// first selected provider's model
	Provider string
	Model    string

	MultiProvider bool
	MaxSteps      int
	Language      string
	ToolTimeout   time.Duration
	ProjectDir    string

	// Web search
	WebSearch         bool
	WebSearchProvider string // "duckduckgo", "brave", or "tavily"
	BraveKeys         *api.KeyRotator
	TavilyKeys        *api.KeyRotator
	fileBraveKeys     []string
	fileTavilyKeys    []string

	// FileSafety holds the rules from the config file; Safety is the merged
	// set handed to the validator
	FileSafety settings.Safety
	Safety     settings.Safety

	// Output flags
	Render  bool
	JSON    bool
	Verbose bool
}

// NewConfig creates a new Config with defaults
func NewConfig() *Config {
	return &Config{}
}

// Validate validates the configuration and loads from environment
func (c *Config) Validate() error {
	// Load from config file first (lowest priority)
	var fc *FileConfig
	var err error
	if c.ConfigPath != "" {
		fc, err = LoadConfigFromPath(c.ConfigPath)
		c.ConfigFile = c.ConfigPath
	} else {
		fc, c.ConfigFile, err = LoadConfigFile()
	}
	if err != nil {
		return err
	}
	if err := c.ApplyFileConfig(fc); err != nil {
		return fmt.Errorf("invalid config file %s: %w", c.ConfigFile, err)
	}

	// Provider selection
	if c.Provider == "" {
		c.Provider = os.Getenv(EnvProviders)
	}
	if c.Model == "" {
		c.Model = strings.TrimSpace(os.Getenv(EnvModel))
	}

	if len(c.Providers) == 0 {
		c.Providers = []api.ProviderConfig{defaultLocalProvider()}
	}
	if host := strings.TrimSpace(os.Getenv(EnvOllamaHost)); host != "" {
		for i := range c.Providers {
			if c.Providers[i].Kind == api.KindOllama && c.Providers[i].Endpoint == "" {
				c.Providers[i].Endpoint = host
			}
		}
	}

	// Language
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if !agent.Language(c.Language).Valid() {
		return ErrInvalidLanguage
	}

	// Initialize key rotators; env keys replace file keys
	c.BraveKeys = rotatorFromEnvOrFile(EnvBraveAPIKeys, c.fileBraveKeys)
	c.TavilyKeys = rotatorFromEnvOrFile(EnvTavilyAPIKeys, c.fileTavilyKeys)

	// Set web search provider (auto-detect based on available keys)
	if c.WebSearchProvider == "" {
		c.WebSearchProvider = os.Getenv(EnvWebSearchProvider)
	}
	c.WebSearchProvider = strings.ToLower(strings.TrimSpace(c.WebSearchProvider))
	if c.WebSearchProvider == "" {
		if c.TavilyKeys.HasKeys() {
			c.WebSearchProvider = api.SearchTavily
		} else if c.BraveKeys.HasKeys() {
			c.WebSearchProvider = api.SearchBrave
		} else {
			c.WebSearchProvider = DefaultSearchProvider
		}
	}

	switch c.WebSearchProvider {
	case api.SearchDuckDuckGo:
	case api.SearchTavily:
		if c.WebSearch && !c.TavilyKeys.HasKeys() {
			return ErrWebSearchKeyNotFound
		}
	case api.SearchBrave:
		if c.WebSearch && !c.BraveKeys.HasKeys() {
			return ErrWebSearchKeyNotFound
		}
	default:
		return ErrInvalidSearchProvider
	}

	return nil
}

// Build resolves the provider selection and returns the immutable
// orchestrator configuration. Call Validate first.
func (c *Config) Build() (agent.Config, error) {
	selected, err := c.selectProviders()
	if err != nil {
		return agent.Config{}, err
	}
	if c.Model != "" && len(selected) > 0 {
		selected[0].Model = c.Model
	}

	cfg := agent.Config{
		Providers:     selected,
		MultiProvider: c.MultiProvider,
		MaxSteps:      c.MaxSteps,
		WebSearch:     c.WebSearch,
		ToolTimeout:   c.ToolTimeout,
		Safety: settings.Safety{
			Destructive: append([]settings.Rule(nil), c.Safety.Destructive...),
			Caution:     append([]settings.Rule(nil), c.Safety.Caution...),
		},
	}
	if err := cfg.Validate(); err != nil {
		return agent.Config{}, err
	}
	return cfg, nil
}

// selectProviders orders providers by --provider, then preference, then
// file order. Returns copies.
func (c *Config) selectProviders() ([]api.ProviderConfig, error) {
	byID := make(map[string]api.ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		byID[p.ID] = p
	}

	if ids := api.SplitKeys(c.Provider); len(ids) > 0 {
		out := make([]api.ProviderConfig, 0, len(ids))
		for _, id := range ids {
			if p, ok := byID[id]; ok {
				out = append(out, p)
				continue
			}
			p, err := implicitProvider(id)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	var out []api.ProviderConfig
	used := make(map[string]bool)
	for _, id := range c.Preference {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w %q in preference", ErrUnknownProvider, id)
		}
		if !used[id] {
			out = append(out, p)
			used[id] = true
		}
	}
	for _, p := range c.Providers {
		if !used[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// implicitProvider builds a provider for a bare kind name so that
// `--provider openai` works without a config file.
func implicitProvider(kind string) (api.ProviderConfig, error) {
	p := api.ProviderConfig{ID: kind, Kind: kind, MaxRetries: constants.DefaultMaxRetries}
	switch kind {
	case api.KindOllama:
		p.Endpoint = os.Getenv(EnvOllamaHost)
	case api.KindOpenAI:
		p.AuthRef = "env:" + EnvOpenAIAPIKey
	case api.KindGemini:
		p.AuthRef = "env:" + EnvGeminiAPIKey
	case api.KindAzure:
		p.Endpoint = strings.TrimSuffix(os.Getenv(EnvAzureEndpoint), "/")
		if p.Endpoint == "" {
			return p, ErrEndpointNotFound
		}
		p.AuthRef = "env:" + EnvAzureAPIKey
	default:
		return p, fmt.Errorf("%w %q", ErrUnknownProvider, kind)
	}
	return p.Normalize(), nil
}

func defaultLocalProvider() api.ProviderConfig {
	return api.ProviderConfig{
		ID:         DefaultProviderID,
		Kind:       api.KindOllama,
		Model:      DefaultModel,
		MaxRetries: constants.DefaultMaxRetries,
	}.Normalize()
}

// SearchClient builds the web search backend, or nil when --web is off
func (c *Config) SearchClient(logger *logging.Logger) (api.SearchClient, error) {
	if !c.WebSearch {
		return nil, nil
	}
	return api.NewSearchClient(api.SearchConfig{
		Provider:   c.WebSearchProvider,
		BraveKeys:  c.BraveKeys,
		TavilyKeys: c.TavilyKeys,
	}, logger)
}

// ProviderIDs lists configured provider ids in file order
func (c *Config) ProviderIDs() []string {
	ids := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		ids[i] = p.ID
	}
	return ids
}

func rotatorFromEnvOrFile(envVar string, fileKeys []string) *api.KeyRotator {
	if kr := api.NewKeyRotatorFromEnv(envVar); kr.HasKeys() {
		return kr
	}
	return api.NewKeyRotator(fileKeys)
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", field, s)
	}
	return d, nil
}
