// Package cmd implements the atlasai command line.
//
// # Layout
//
//   - root.go: App struct, root command, persistent flags, exit codes
//   - run.go: suggest, optimize, and debug; request processing and history
//   - chat.go: interactive REPL built on go-prompt
//   - slash_commands.go: REPL slash command handlers
//   - login.go: auth login, logout, and status for the credential store
//   - history.go: history list, show, and clear
//   - config_cmd.go: config init, show, doctor, and safety rules
//
// # Flow
//
// Flags are written into a config.Config. Commands that contact providers
// call App.setup, which validates the config (file, then environment, then
// flags), opens the credential store, and merges safety settings.
// App.process builds an agent.Request and an immutable agent.Config, runs
// the orchestrator, renders the Recommendation, and saves it to history.
//
// # Exit codes
//
//	0    success
//	1    any error
//	130  the request was cancelled (Ctrl+C)
package cmd
