package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddx-reasoning-core/internal/feedback"
)

func newCalibrateCommand(g *globalOptions) *cobra.Command {
	var (
		dbPath string
		opts   = feedback.DefaultAuditOptions()
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Audit predicted confidences against recorded outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Bins < 1 || opts.Bins > 100 {
				return fmt.Errorf("bins must be between 1 and 100")
			}
			store, err := feedback.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			audit, err := feedback.Evaluate(cmd.Context(), store, opts)
			if err != nil {
				return err
			}
			if !audit.WithinTolerance {
				g.logger.WithField("suggested_temperature", audit.SuggestedTemperature).
					Warn("Confidences drift beyond tolerance")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(audit)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite feedback database")
	cmd.Flags().StringVar(&opts.ModelVersion, "model-version", "", "restrict to one model version")
	cmd.Flags().IntVar(&opts.Bins, "bins", opts.Bins, "number of confidence bins")
	cmd.Flags().IntVar(&opts.MinCount, "min-count", opts.MinCount, "samples a bin needs before it is judged")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", opts.Tolerance, "allowed gap in percentage points")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
