package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry of a conversation sent to a provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []ToolRequest `json:"tool_calls,omitempty"`
	// ToolCallID and ToolName are set on tool turns.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolRequest is a tool invocation requested by a model.
type ToolRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolSpec declares a callable tool to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RawOutput is the normalized result of one provider call.
type RawOutput struct {
	Text      string        `json:"text"`
	ToolCalls []ToolRequest `json:"tool_calls,omitempty"`
	Usage     Usage         `json:"usage"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
}

// HasToolCalls reports whether the model asked for tools.
func (o *RawOutput) HasToolCalls() bool {
	return o != nil && len(o.ToolCalls) > 0
}

// Provider is a single LLM backend.
type Provider interface {
	// ID returns the configured provider id.
	ID() string
	// Invoke sends the conversation and the offered tools. Adapters never
	// retry; failures come back as *ProviderError or context.Canceled.
	Invoke(ctx context.Context, conversation []Turn, tools []ToolSpec) (*RawOutput, error)
}

// CredentialResolver turns an opaque auth_ref handle into a secret.
type CredentialResolver interface {
	Resolve(ref string) (string, error)
}

// Provider kinds
const (
	KindOllama = "ollama"
	KindOpenAI = "openai"
	KindGemini = "gemini"
	KindAzure  = "azure"
)

// Provider modes
const (
	ModeLocal  = "local"
	ModeHosted = "hosted"
)

// ProviderConfig describes one configured backend.
type ProviderConfig struct {
	ID          string
	Kind        string
	Mode        string
	Model       string
	Endpoint    string
	AuthRef     string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

// Normalize fills defaults derived from the kind.
func (c ProviderConfig) Normalize() ProviderConfig {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.ID == "" {
		c.ID = c.Kind
	}
	if c.Mode == "" {
		if c.Kind == KindOllama {
			c.Mode = ModeLocal
		} else {
			c.Mode = ModeHosted
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = constants.DefaultProviderTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Model == "" {
		switch c.Kind {
		case KindOllama:
			c.Model = constants.DefaultLocalModel
		case KindOpenAI:
			c.Model = constants.DefaultOpenAIModel
		case KindGemini:
			c.Model = constants.DefaultGeminiModel
		}
	}
	return c
}

// Validate checks the fields an adapter cannot work without.
func (c ProviderConfig) Validate() error {
	switch c.Kind {
	case KindOllama, KindOpenAI, KindGemini:
	case KindAzure:
		if c.Endpoint == "" {
			return fmt.Errorf("provider %q: azure requires an endpoint", c.ID)
		}
	default:
		return fmt.Errorf("provider %q: unknown kind %q", c.ID, c.Kind)
	}
	if c.Model == "" {
		return fmt.Errorf("provider %q: model is required", c.ID)
	}
	if c.Mode != ModeLocal && c.Mode != ModeHosted {
		return fmt.Errorf("provider %q: invalid mode %q", c.ID, c.Mode)
	}
	return nil
}

// Options carries shared dependencies for adapters.
type Options struct {
	Credentials CredentialResolver
	Logger      *logging.Logger
}

// NewProvider builds the adapter for cfg.Kind.
func NewProvider(cfg ProviderConfig, opts Options) (Provider, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	switch cfg.Kind {
	case KindOllama:
		return NewOllamaProvider(cfg, opts), nil
	case KindOpenAI:
		return NewOpenAIProvider(cfg, opts), nil
	case KindGemini:
		return NewGeminiProvider(cfg, opts), nil
	case KindAzure:
		return NewAzureProvider(cfg, opts), nil
	}
	return nil, fmt.Errorf("provider %q: unknown kind %q", cfg.ID, cfg.Kind)
}

// resolveSecret looks up the credential for cfg. An empty AuthRef means no
// auth and yields "".
func resolveSecret(cfg ProviderConfig, creds CredentialResolver) (string, error) {
	if cfg.AuthRef == "" {
		return "", nil
	}
	if creds == nil {
		return "", &ProviderError{Kind: ErrAuthFailure, Provider: cfg.ID, Err: fmt.Errorf("no credential resolver for %q", cfg.AuthRef)}
	}
	secret, err := creds.Resolve(cfg.AuthRef)
	if err != nil {
		return "", &ProviderError{Kind: ErrAuthFailure, Provider: cfg.ID, Err: err}
	}
	return secret, nil
}

// requireUserTurn rejects conversations without a user turn before any
// network traffic happens.
func requireUserTurn(providerID string, conversation []Turn) error {
	for _, t := range conversation {
		if t.Role == RoleUser {
			return nil
		}
	}
	return &ProviderError{Kind: ErrMalformed, Provider: providerID, Err: fmt.Errorf("conversation has no user turn"), Permanent: true}
}

// splitSystem returns the concatenated system prompt and the remaining turns.
func splitSystem(conversation []Turn) (string, []Turn) {
	var system []string
	rest := make([]Turn, 0, len(conversation))
	for _, t := range conversation {
		if t.Role == RoleSystem {
			system = append(system, t.Content)
			continue
		}
		rest = append(rest, t)
	}
	return strings.TrimSpace(strings.Join(system, "\n\n")), rest
}
