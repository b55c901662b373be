package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/history"
)

func (app *App) newHistoryCmd() *cobra.Command {
	var (
		limit  int
		search string
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent requests",
		Long: `List saved requests, newest first. Every request is saved with its full
transcript unless --no-history is given.

Examples:
  atlasai history
  atlasai history --limit 50 --search docker
  atlasai history show 3f2a9c1e
  atlasai history clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			entries, err := store.List(limit, search)
			if err != nil {
				return err
			}
			if app.cfg.JSON {
				if entries == nil {
					entries = []history.Entry{}
				}
				return display.WriteJSON(display.Stdout, entries)
			}
			display.ShowHistory(entries)
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().StringVarP(&search, "search", "s", "", "Only show requests whose input or command contains this text")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one request with its transcript",
		Long: `Show one saved request with the full conversation that produced it.
Any unique prefix of the id works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			entry, err := store.Get(args[0])
			switch {
			case errors.Is(err, history.ErrNotFound):
				return fmt.Errorf("no history entry %q", args[0])
			case errors.Is(err, history.ErrAmbiguous):
				return fmt.Errorf("id prefix %q matches more than one entry", args[0])
			case err != nil:
				return err
			}
			if app.cfg.JSON {
				return display.WriteJSON(display.Stdout, entry)
			}

			if app.cfg.Render {
				if err := display.InitRenderer(); err != nil {
					app.logger.Warn("markdown rendering disabled")
				}
			}
			sess, err := entry.Session()
			if err != nil {
				display.ShowWarning(err.Error())
			}
			display.ShowEntry(entry, sess)
			return nil
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all saved requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogger()
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			display.ShowSuccess("History cleared.")
			return nil
		},
	})

	return historyCmd
}
