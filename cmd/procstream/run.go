package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loykin/procstream"
	"github.com/loykin/procstream/pkg/client"
)

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- <tool args...>",
		Short: "Run the configured tool and stream its output",
		Long: `Run the configured tool once with the given arguments, printing each
output line as it arrives. Ctrl-C cancels the operation. The exit status is
non-zero when the tool fails, times out or is cancelled.

With --api-url the operation runs on a daemon and its events are streamed back.

Examples:
  procstream run --config procstream.toml -- write image.bin
  procstream run --binary /usr/bin/flasher -- --list
  procstream run --api-url http://localhost:8080/api --op-id flash-1 -- write image.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if f.OperationID == "" {
				f.OperationID = uuid.NewString()
			}
			p := printer{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), json: f.JSON}
			if f.Remote.APIUrl != "" {
				return runRemote(ctx, f, args, p)
			}
			cfg, err := loadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			if f.Binary != "" {
				cfg.Tool.Binary = f.Binary
			}
			if f.WorkDir != "" {
				cfg.Tool.WorkDir = f.WorkDir
			}
			return runLocal(ctx, cfg, f.OperationID, args, p)
		},
	}
	cmd.Flags().StringVar(&f.OperationID, "op-id", "", "operation id (generated when empty)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "working directory for the tool")
	cmd.Flags().StringVar(&f.Binary, "binary", "", "tool binary (overrides [tool].binary)")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print events as JSON lines")
	addRemoteFlags(cmd, &f.Remote, false)
	return cmd
}

// runLocal executes the tool in this process. Cancelling ctx kills it.
func runLocal(ctx context.Context, cfg *procstream.Config, opID string, args []string, p printer) error {
	e, err := procstream.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	sub := e.Subscribe(opID)
	defer sub.Close()

	run, err := e.Start(ctx, opID, args...)
	if err != nil {
		return err
	}
	// the completion is always published before the run ends
	for m := range sub.C {
		if m.Line != nil {
			p.line(m, m.Line.Line, m.Line.IsStderr)
		}
		if m.Complete != nil {
			p.complete(m, m.Complete.Success, m.Complete.ErrorText())
			break
		}
	}
	_, err = run.Wait()
	return err
}

// runRemote starts the operation on a daemon and follows its events. The
// first interrupt asks the daemon to cancel; the stream then ends with the
// operation's completion.
func runRemote(ctx context.Context, f *RunFlags, args []string, p printer) error {
	c, err := newClient(f.Remote)
	if err != nil {
		return err
	}
	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()

	stream, err := c.Follow(streamCtx, f.OperationID)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	if _, err := c.Start(ctx, client.StartRequest{OperationID: f.OperationID, Args: args, WorkDir: f.WorkDir}); err != nil {
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			if err := c.Cancel(context.Background()); err != nil {
				_, _ = fmt.Fprintln(p.errOut, "cancel failed:", err)
			}
		case <-finished:
		}
	}()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("event stream closed before the operation completed")
		}
		if err != nil {
			return err
		}
		if ev.Line != nil {
			p.line(ev, ev.Line.Line, ev.Line.IsStderr)
		}
		if ev.Complete != nil {
			p.complete(ev, ev.Complete.Success, ev.Complete.ErrorText())
			if !ev.Complete.Success {
				return fmt.Errorf("operation %s failed: %s", f.OperationID, ev.Complete.ErrorText())
			}
			return nil
		}
	}
}

type printer struct {
	out    io.Writer
	errOut io.Writer
	json   bool
}

func (p printer) line(raw any, text string, stderr bool) {
	if p.json {
		p.emitJSON(raw)
		return
	}
	w := p.out
	if stderr {
		w = p.errOut
	}
	_, _ = fmt.Fprintln(w, text)
}

func (p printer) complete(raw any, success bool, errText string) {
	if p.json {
		p.emitJSON(raw)
		return
	}
	if !success && errText != "" {
		_, _ = fmt.Fprintln(p.errOut, "error:", errText)
	}
}

func (p printer) emitJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(p.out, string(b))
}
