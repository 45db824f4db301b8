package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/procstream"
)

func createVersionCommand(globalFlags *GlobalFlags) *cobra.Command {
	var binary string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print procstream and tool versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "procstream %s\n", version)

			cfg, err := loadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			if binary != "" {
				cfg.Tool.Binary = binary
			}
			e, err := procstream.Open(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()
			v, err := e.Version(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s --version: %w", cfg.Tool.Name, err)
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", cfg.Tool.Name, strings.TrimSpace(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&binary, "binary", "", "tool binary (overrides [tool].binary)")
	return cmd
}
