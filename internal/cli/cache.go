package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/cache"
)

// newCacheCmd creates the cache command group.
func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Inspect and maintain the inventory cache"}
	cmd.AddCommand(
		newCacheListCmd(app),
		newCachePurgeCmd(app),
		newCacheDeleteCmd(app),
		newCacheClearCmd(app),
	)
	return cmd
}

func newCacheListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cache entries with their age and remaining lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.transaction(cmd.Context(), func(_ context.Context, tx *cache.Tx) error {
				entries, err := tx.Entries()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cache file: %s\n", tx.Path())
				renderEntries(cmd.OutOrStdout(), entries, tx)
				return nil
			})
		},
	}
}

func renderEntries(w io.Writer, entries []cache.CacheEntry, tx *cache.Tx) {
	now := tx.Now()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Key", "Items", "Age", "Expires In", "Status"})
	for i := range entries {
		e := &entries[i]
		status, expires := "live", cache.FormatDuration(e.TimeUntilExpiration(now))
		if !e.LiveAt(now) {
			status, expires = "expired", "-"
		}
		t.AppendRow(table.Row{e.Key, itemCount(e.Data), cache.FormatDuration(e.Age(now)), expires, status})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}

// itemCount reports the number of records in a cached list.
func itemCount(data json.RawMessage) string {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "-"
	}
	return strconv.Itoa(len(items))
}

func newCachePurgeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.transaction(cmd.Context(), func(_ context.Context, tx *cache.Tx) error {
				n, err := tx.Purge()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
				return err
			})
		},
	}
}

func newCacheDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete KEY...",
		Short:   "Remove cache entries by key, e.g. projects or instances/<project>",
		Args:    cobra.MinimumNArgs(1),
		Example: "  geco cache delete instances/my-project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.transaction(cmd.Context(), func(_ context.Context, tx *cache.Tx) error {
				for _, key := range args {
					if err := tx.Delete(key); err != nil {
						return fmt.Errorf("deleting %s: %w", key, err)
					}
				}
				return nil
			})
		},
	}
}

func newCacheClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cache file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", store.Path())
			return err
		},
	}
}
