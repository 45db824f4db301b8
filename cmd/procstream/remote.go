package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/procstream/pkg/client"
)

func addRemoteFlags(cmd *cobra.Command, f *RemoteFlags, required bool) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon API base URL, e.g. http://localhost:8080/api")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "timeout for API requests")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA bundle trusted for an HTTPS daemon")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
	if required {
		_ = cmd.MarkFlagRequired("api-url")
	}
}

func newClient(f RemoteFlags) (*client.Client, error) {
	cfg := client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout, Insecure: f.Insecure}
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: f.CACert}
	}
	return client.New(cfg)
}

func createCancelCommand() *cobra.Command {
	f := &RemoteFlags{}
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the operation running on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(*f)
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cancel requested")
			return nil
		},
	}
	addRemoteFlags(cmd, f, true)
	return cmd
}

func createStatusCommand() *cobra.Command {
	f := &RemoteFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running an operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(*f)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), st)
			return nil
		},
	}
	addRemoteFlags(cmd, f, true)
	return cmd
}

func createLastCommandCommand() *cobra.Command {
	f := &RemoteFlags{}
	cmd := &cobra.Command{
		Use:   "last-command",
		Short: "Show the last tool command line the daemon launched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(*f)
			if err != nil {
				return err
			}
			info, err := c.LastCommand(cmd.Context())
			if errors.Is(err, client.ErrNotFound) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no command has been run")
				return nil
			}
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), info)
			return nil
		},
	}
	addRemoteFlags(cmd, f, true)
	return cmd
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}
