// Package constants provides shared constants used across the application
// to avoid circular dependencies between packages.
package constants

import "time"

// AppName names config, credential, and data directories.
const AppName = "atlasai"

// Timeout constants used across the application
const (
	// DefaultProviderTimeout bounds one provider call (local models can be slow)
	DefaultProviderTimeout = 120 * time.Second
	// DefaultToolTimeout bounds one tool invocation
	DefaultToolTimeout = 20 * time.Second
	// DefaultSearchTimeout is the HTTP timeout for search backends
	DefaultSearchTimeout = 30 * time.Second
	// DefaultHealthTimeout is used by `config doctor` probes
	DefaultHealthTimeout = 2 * time.Second
)

// Agent loop defaults
const (
	DefaultMaxSteps      = 5
	DefaultMaxRetries    = 2
	DefaultMaxSearchHits = 5
	// ConfidenceTolerance is the window inside which a non-destructive
	// candidate beats a destructive one
	ConfidenceTolerance = 0.05
	DefaultConfidence   = 0.5
)

// Application defaults
const (
	DefaultLocalModel     = "qwen3:8b"
	DefaultOpenAIModel    = "gpt-4.1-mini"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOllamaHost     = "http://localhost:11434"
	DefaultLanguage       = "en"
	DefaultSearchProvider = "duckduckgo"
)

// Limits for the read-only project tools
const (
	MaxReadFileBytes  = 64 * 1024
	MaxListingEntries = 200
)
