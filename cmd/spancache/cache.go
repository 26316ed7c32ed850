package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted span cache",
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the live entries of the persisted cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()

			a.cache.Hydrate()
			if err := a.cache.WaitHydrated(ctx); err != nil {
				return err
			}
			report, _ := a.cache.LastHydration()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"entries":   a.cache.GetSnapshot(),
				"stats":     a.cache.Stats(),
				"hydration": report,
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry and the persisted snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}

			a.cache.Clear()
			if err := a.close(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Span cache cleared.")
			return nil
		},
	}

	cmd.AddCommand(snapshotCmd, clearCmd)
	return cmd
}
