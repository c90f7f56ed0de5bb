package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/knowledge"
	"github.com/ddx-reasoning-core/internal/service"
)

func newDiagnoseCommand(g *globalOptions) *cobra.Command {
	var casePath, snapshotPath string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Produce a ranked differential for a case file (JSON or YAML)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.diagnosisConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(casePath)
			if err != nil {
				return fmt.Errorf("reading case: %w", err)
			}
			doc, err := domain.ParseCaseDocument(data)
			if err != nil {
				return err
			}
			profile, err := doc.ToNormalizedCase()
			if err != nil {
				return err
			}

			store := knowledge.NewStore(4096, g.logger)
			if err := store.Reload(snapshotPath); err != nil {
				return err
			}
			pipeline, err := service.NewDiagnosticPipeline(cfg, store, nil, g.logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Deadline)
			defer cancel()
			dd, err := pipeline.Diagnose(ctx, profile)
			if err != nil {
				var de *domain.DiagnosticError
				if errors.As(err, &de) {
					return fmt.Errorf("%s (%w)", de.Explanation, err)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dd)
		},
	}
	cmd.Flags().StringVar(&casePath, "case", "", "case document")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "knowledge snapshot (YAML or JSON)")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}
