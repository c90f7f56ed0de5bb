// Command ddxctl runs the reasoning core offline: one-shot diagnoses, snapshot checks and
// calibration audits over a local feedback database.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ddx-reasoning-core/internal/config"
	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/setup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configFile string
	logLevel   string
	logger     *logrus.Logger
}

// diagnosisConfig returns the diagnosis section of --config, or the defaults without one.
func (g *globalOptions) diagnosisConfig() (domain.DiagnosisConfig, error) {
	if g.configFile == "" {
		return domain.DefaultDiagnosisConfig(), nil
	}
	m, err := config.NewManagerWithFile(g.configFile)
	if err != nil {
		return domain.DiagnosisConfig{}, err
	}
	if err := m.Validate(); err != nil {
		return domain.DiagnosisConfig{}, err
	}
	return *m.GetDiagnosisConfig(), nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "ddxctl",
		Short:         "Offline tooling for the diagnostic reasoning core",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = config.NewLogger(domain.LoggingConfig{Level: opts.logLevel, Format: "text", Output: "stderr"})
			opts.logger.SetOutput(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "server config file for diagnosis settings")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newDiagnoseCommand(opts),
		newSnapshotCommand(opts),
		newCalibrateCommand(opts),
		setup.NewCommand(),
	)
	return root
}
