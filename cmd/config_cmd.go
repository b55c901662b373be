package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/config"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/logging"
	"github.com/atlasserver/atlasai/internal/settings"
)

func (app *App) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}
	configCmd.AddCommand(app.newConfigInitCmd())
	configCmd.AddCommand(app.newConfigShowCmd())
	configCmd.AddCommand(app.newConfigDoctorCmd())
	configCmd.AddCommand(app.newSafetyCmd())
	return configCmd
}

func (app *App) newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfigFile()
			if err != nil {
				return err
			}
			display.ShowSuccess("Created " + path)
			return nil
		},
	}
}

// effectiveConfig is what `config show` prints
type effectiveConfig struct {
	ConfigFile    string             `yaml:"config_file"`
	Providers     []effectiveBackend `yaml:"providers"`
	MultiProvider bool               `yaml:"multi_provider"`
	MaxSteps      int                `yaml:"max_steps"`
	Language      string             `yaml:"language"`
	ToolTimeout   string             `yaml:"tool_timeout"`
	WebSearch     string             `yaml:"web_search"`
	Safety        settings.Safety    `yaml:"safety"`
}

type effectiveBackend struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	Mode       string `yaml:"mode"`
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	AuthRef    string `yaml:"auth_ref,omitempty"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

func (app *App) newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration a request would run with, after merging the config
file, environment variables, and flags. Providers are listed in the order
they would be tried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			agentCfg, err := app.cfg.Build()
			if err != nil {
				return err
			}

			view := effectiveConfig{
				ConfigFile:    app.cfg.ConfigFile,
				MultiProvider: agentCfg.MultiProvider,
				MaxSteps:      agentCfg.MaxSteps,
				Language:      app.cfg.Language,
				ToolTimeout:   agentCfg.ToolTimeout.String(),
				WebSearch:     "off",
				Safety:        agentCfg.Safety,
			}
			if view.ConfigFile == "" {
				view.ConfigFile = "(none)"
			}
			if view.MaxSteps == 0 {
				view.MaxSteps = constants.DefaultMaxSteps
			}
			if agentCfg.ToolTimeout == 0 {
				view.ToolTimeout = constants.DefaultToolTimeout.String()
			}
			if agentCfg.WebSearch {
				view.WebSearch = app.cfg.WebSearchProvider
			}
			for _, p := range agentCfg.Providers {
				view.Providers = append(view.Providers, effectiveBackend{
					ID:         p.ID,
					Kind:       p.Kind,
					Mode:       p.Mode,
					Model:      p.Model,
					Endpoint:   p.Endpoint,
					AuthRef:    p.AuthRef,
					Timeout:    p.Timeout.String(),
					MaxRetries: p.MaxRetries,
				})
			}

			if app.cfg.JSON {
				return display.WriteJSON(cmd.OutOrStdout(), view)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return fmt.Errorf("failed to print config: %w", err)
			}
			return enc.Close()
		},
	}
}

func (app *App) newConfigDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that every configured provider is usable",
		Long: `Check every configured provider: local engines must answer on their
endpoint, and hosted providers must be able to resolve their auth_ref.
Nothing is sent to a model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			problems := 0
			for _, p := range app.cfg.Providers {
				if msg, ok := app.checkProvider(cmd.Context(), p); ok {
					fmt.Fprintf(out, "  ok    %-16s %s\n", p.ID, msg)
				} else {
					problems++
					fmt.Fprintf(out, "  FAIL  %-16s %s\n", p.ID, msg)
				}
			}
			if problems > 0 {
				return fmt.Errorf("%d of %d providers have problems", problems, len(app.cfg.Providers))
			}
			return nil
		},
	}
}

// checkProvider returns a one-line status and whether the provider is usable
func (app *App) checkProvider(ctx context.Context, p api.ProviderConfig) (string, bool) {
	if err := p.Validate(); err != nil {
		return err.Error(), false
	}
	if p.AuthRef != "" {
		if _, err := app.creds.Resolve(p.AuthRef); err != nil {
			return err.Error(), false
		}
	}
	if p.Kind != api.KindOllama {
		return fmt.Sprintf("%s/%s, credentials resolved", p.Kind, p.Model), true
	}

	client := logging.NewHTTPClient(constants.DefaultHealthTimeout, app.logger)
	version, err := api.OllamaVersion(ctx, p.Endpoint, client)
	if err != nil {
		return fmt.Sprintf("ollama not reachable at %s: %v", endpointOrDefault(p.Endpoint), err), false
	}
	return fmt.Sprintf("ollama %s at %s, model %s", version, endpointOrDefault(p.Endpoint), p.Model), true
}

func endpointOrDefault(endpoint string) string {
	if endpoint == "" {
		return constants.DefaultOllamaHost
	}
	return endpoint
}

func (app *App) newSafetyCmd() *cobra.Command {
	safetyCmd := &cobra.Command{
		Use:   "safety",
		Short: "List custom safety rules",
		Long: `List the custom safety rules layered on top of the built-in risk classifier.
Rules come from the global settings, the project's .atlasai/settings.json,
and the safety section of config.yaml.

Patterns:
  rm -rf*          glob, matched against each command in a chain
  kubectl:delete   program and first argument
  terraform:*      any use of a program`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			display.ShowSafetyRules(app.settings.Merged())
			return nil
		},
	}

	var level, reason string
	addCmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a global safety rule",
		Long: `Add a rule to the global settings file. Commands matching a destructive
rule are never preferred over a safe alternative of similar confidence.

Examples:
  atlasai config safety add "helm uninstall*" --reason "removes a release"
  atlasai config safety add "docker compose down" --level caution`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, ok := settings.ParseLevel(level)
			if !ok {
				return fmt.Errorf("invalid level %q, use destructive or caution", level)
			}
			pattern := strings.TrimSpace(args[0])
			if pattern == "" {
				return fmt.Errorf("pattern is empty")
			}
			if err := app.setup(); err != nil {
				return err
			}

			app.settings.AddGlobalRule(lvl, settings.Rule{Pattern: pattern, Reason: reason})
			if err := app.settings.Save(); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s rule %q to %s\n", lvl, pattern, app.settings.GlobalPath())
			return nil
		},
	}
	addCmd.Flags().StringVar(&level, "level", "destructive", "Rule level: destructive or caution")
	addCmd.Flags().StringVar(&reason, "reason", "", "Shown next to the risk when the rule matches")
	safetyCmd.AddCommand(addCmd)

	return safetyCmd
}
