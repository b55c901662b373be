package agent

import (
	"fmt"
	"time"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/settings"
)

// Config is the immutable per-invocation configuration. The orchestrator
// never reads the environment; everything arrives here.
type Config struct {
	// Providers in preference order.
	Providers     []api.ProviderConfig
	MultiProvider bool
	MaxSteps      int
	// WebSearch offers the web_search tool when a search client is wired.
	WebSearch   bool
	ToolTimeout time.Duration
	Safety      settings.Safety
}

// Preference returns normalized provider ids in preference order. They match
// the SourceProvider of the candidates each provider produces.
func (c Config) Preference() []string {
	ids := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		ids[i] = p.Normalize().ID
	}
	return ids
}

func (c Config) maxSteps() int {
	if c.MaxSteps <= 0 {
		return constants.DefaultMaxSteps
	}
	return c.MaxSteps
}

// Validate checks the configuration before any provider is contacted
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return &ValidationError{Field: "providers", Reason: "no providers configured"}
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		p = p.Normalize()
		if err := p.Validate(); err != nil {
			return &ValidationError{Field: "providers", Reason: err.Error()}
		}
		if seen[p.ID] {
			return &ValidationError{Field: "providers", Reason: fmt.Sprintf("duplicate provider id %q", p.ID)}
		}
		seen[p.ID] = true
	}
	return nil
}
