package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventstore/core"
	"eventstore/pkg/config"
	"eventstore/pkg/resources"
)

func newSnapshotCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a timestamped copy of the events file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := config.Default(cmd.Context(), name, version, env)
			settings := config.Load(name, version, env)

			if dir == "" {
				dir = settings.Snapshot.Dir
			}

			store, err := resources.CreateFileStore(ctx)
			if err != nil {
				return fmt.Errorf("unable to create file store: %w", err)
			}

			// a malformed file must not produce an empty snapshot
			repo, err := core.NewRepository(ctx, store, core.WithStrictLoad(true))
			if err != nil {
				return fmt.Errorf("unable to load events: %w", err)
			}

			path, err := repo.Snapshot(ctx, dir)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "destination directory (default snapshot.dir)")

	return cmd
}
