package agent

import (
	"slices"
	"testing"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/validate"
)

func TestConfig_Preference(t *testing.T) {
	tests := []struct {
		name      string
		providers []api.ProviderConfig
		want      []string
	}{
		{"explicit ids", []api.ProviderConfig{{ID: "cloud", Kind: api.KindOpenAI}, {ID: "local", Kind: api.KindOllama}}, []string{"cloud", "local"}},
		{"kind only", []api.ProviderConfig{{Kind: api.KindOllama}, {Kind: api.KindOpenAI}}, []string{"ollama", "openai"}},
		{"mixed", []api.ProviderConfig{{Kind: " Ollama "}, {ID: "cloud", Kind: api.KindOpenAI}}, []string{"ollama", "cloud"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Config{Providers: tt.providers}.Preference()
			if !slices.Equal(got, tt.want) {
				t.Errorf("Preference() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_PreferenceBreaksRankTies(t *testing.T) {
	cfg := Config{Providers: []api.ProviderConfig{{Kind: api.KindOllama}, {Kind: api.KindOpenAI}}}
	candidates := []validate.Candidate{
		{CommandText: "make serve", RiskLevel: validate.RiskSafe, Confidence: 0.8, SourceProvider: "openai"},
		{CommandText: "go run .", RiskLevel: validate.RiskSafe, Confidence: 0.8, SourceProvider: "ollama"},
	}

	rec, err := validate.Rank(candidates, cfg.Preference())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if rec.Chosen.SourceProvider != "ollama" {
		t.Errorf("Chosen.SourceProvider = %q, want ollama", rec.Chosen.SourceProvider)
	}
}
