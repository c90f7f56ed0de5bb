package setup

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the `setup` command tree shared by mcp-server-lite and ddxctl.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the lite MCP server with a desktop client and check the installation",
	}
	cmd.AddCommand(newRegisterCommand(), newStatusCommand())
	return cmd
}

func newRegisterCommand() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add the lite server to the desktop client configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := Register(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\nRestart the client to pick up the change.\n", ServerName, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.BinaryPath, "binary", "b", "", "path to the mcp-server-lite binary")
	cmd.Flags().StringVarP(&opts.DataDir, "data-dir", "d", "", "data directory for feedback and exports")
	cmd.Flags().StringVar(&opts.SnapshotPath, "snapshot", "", "knowledge snapshot file")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "client config file (defaults to the per-OS location)")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registration, data directory and knowledge snapshot status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := GetStatus(configPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return err
			}
			if !status.OK() {
				return fmt.Errorf("setup incomplete: %d issue(s)", len(status.Issues))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "client config file (defaults to the per-OS location)")
	return cmd
}
