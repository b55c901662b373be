package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atlasserver/atlasai/internal/credentials"
)

func (app *App) newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored provider credentials",
		Long: `Manage the secrets that providers reference with auth_ref: store:NAME.

Secrets are kept in ~/.config/atlasai/credentials.json with owner-only
permissions. Providers can also use auth_ref: env:NAME to read a secret from
the environment instead.`,
	}
	authCmd.AddCommand(app.newLoginCmd())
	authCmd.AddCommand(app.newLogoutCmd())
	authCmd.AddCommand(app.newStatusCmd())
	return authCmd
}

// newLoginCmd creates the login command
func (app *App) newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <name>",
		Short: "Store a secret under a name",
		Long: `Store an API key so providers can reference it as auth_ref: store:<name>.

The secret is read from the terminal without echo, or from stdin when piped.

Examples:
  atlasai auth login openai
  echo "$AZURE_KEY" | atlasai auth login azure`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			if err := app.openCredentials(); err != nil {
				return err
			}
			name := args[0]

			secret, err := app.readSecret(name)
			if err != nil {
				return err
			}
			if err := app.creds.Set(name, secret); err != nil {
				return fmt.Errorf("failed to save credential: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s (%s)\n", name, credentials.Mask(secret))
			fmt.Fprintf(out, "Reference it from config.yaml with: auth_ref: store:%s\n", name)
			return nil
		},
	}
}

// newLogoutCmd creates the logout command
func (app *App) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <name>",
		Short: "Remove a stored secret",
		Long: `Remove a stored secret.

Examples:
  atlasai auth logout openai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			if err := app.openCredentials(); err != nil {
				return err
			}
			name := args[0]
			out := cmd.OutOrStdout()

			if _, err := app.creds.Get(name); errors.Is(err, credentials.ErrNotFound) {
				fmt.Fprintf(out, "No credential named %s.\n", name)
				return nil
			}
			if err := app.creds.Delete(name); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintf(out, "Removed %s.\n", name)
			return nil
		},
	}
}

// newStatusCmd creates the status command
func (app *App) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored secrets and provider authentication",
		Long: `Show stored secrets (masked) and whether every configured provider can
resolve its auth_ref.

Examples:
  atlasai auth status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			if err := app.openCredentials(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			names, err := app.creds.Names()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Stored credentials:")
			fmt.Fprintln(out)
			if len(names) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, name := range names {
				secret, err := app.creds.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-16s %s\n", name, credentials.Mask(secret))
			}
			fmt.Fprintf(out, "  File: %s\n", app.creds.Path())

			// Provider status needs a valid config; a broken one is reported
			// but does not hide the stored secrets above
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Providers:")
			fmt.Fprintln(out)
			if err := app.cfg.Validate(); err != nil {
				fmt.Fprintf(out, "  config error: %v\n", err)
				return nil
			}
			for _, p := range app.cfg.Providers {
				fmt.Fprintf(out, "  %-16s %s\n", p.ID, app.authStatus(p.AuthRef))
			}
			return nil
		},
	}
}

func (app *App) authStatus(ref string) string {
	if ref == "" {
		return "no auth required"
	}
	if _, err := app.creds.Resolve(ref); err != nil {
		return fmt.Sprintf("%s: missing (%v)", ref, err)
	}
	return ref + ": ok"
}

// readSecret prompts without echo on a terminal, else reads one line
func (app *App) readSecret(name string) (string, error) {
	if f, ok := app.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(os.Stderr, "Secret for %s: ", name)
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(app.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
