package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/procstream"
	"github.com/loykin/procstream/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createServeCommand(globalFlags),
		createCancelCommand(),
		createStatusCommand(),
		createLastCommandCommand(),
		createVersionCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "procstream",
		Short: "Run a command-line tool and stream its progress",
		Long: `procstream runs one external tool at a time, turns its stdout/stderr
(including carriage-return progress redraws) into line events, kills it when it
goes silent for too long and reports one completion per operation.

Examples:
  procstream run --config procstream.toml -- write image.bin
  procstream serve --config procstream.toml
  procstream run --api-url http://localhost:8080/api -- write image.bin
  procstream cancel --api-url http://localhost:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

// loadConfig reads the config (defaults when path is empty) and installs the
// configured logger.
func loadConfig(path string) (*procstream.Config, error) {
	cfg, err := procstream.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logger.Setup(cfg.Log)
	return cfg, nil
}
