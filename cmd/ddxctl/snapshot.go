package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ddx-reasoning-core/internal/knowledge"
)

func newSnapshotCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect knowledge snapshots",
	}

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Load a snapshot and print its counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.diagnosisConfig()
			if err != nil {
				return err
			}
			snapshot, err := knowledge.LoadFile(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot.Stats(cfg.RareThreshold))
		},
	}
	cmd.AddCommand(validate)
	return cmd
}
