package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/setup"
)

func setupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&configPath, "client-config", "", "desktop client config file (default: the OS-specific location)")

	var opts setup.Options
	desktopCmd := &cobra.Command{
		Use:   "desktop",
		Short: "Add or update the mcp-server entry in the desktop client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = configPath
			entry, err := setup.Configure(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %q -> %s\n", setup.ServerName, entry.Command)
			for k, v := range entry.Env {
				fmt.Fprintf(out, "  %s=%s\n", k, v)
			}
			fmt.Fprintln(out, "Restart the desktop client to load the new configuration.")
			return nil
		},
	}
	desktopCmd.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to the mcp-server binary (default: search PATH and common locations)")
	desktopCmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed to the server")
	desktopCmd.Flags().StringVar(&opts.Provider, "provider", "", "reasoning provider passed to the server (openai, gemini, none)")
	cmd.AddCommand(desktopCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the MCP server is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := setup.GetStatus(configPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	})

	return cmd
}
