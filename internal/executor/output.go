package executor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/procstream/internal/process"
)

// Output runs the tool once without streaming and returns its raw stdout. It
// does not take the registry slot and emits no events; a non-zero exit fails
// with the captured stderr as detail.
func Output(ctx context.Context, inv Invocation) (string, error) {
	if strings.TrimSpace(inv.Binary) == "" {
		return "", &Error{Kind: ErrInvalid, OperationID: inv.OperationID, Err: process.ErrNoBinary}
	}
	storeLastCommand(CommandInfo{
		OperationID: inv.OperationID,
		Command:     inv.Binary,
		Args:        inv.Args,
		WorkingDir:  inv.WorkDir,
		StartedAt:   time.Now().UTC(),
	})
	slog.Info("Executing tool", "binary", inv.Binary, "args", inv.Args, "cwd", inv.WorkDir)

	cmd := inv.spec().BuildCommandContext(ctx)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", &Error{Kind: ErrSpawn, OperationID: inv.OperationID, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: ErrCancelled, OperationID: inv.OperationID, Err: ctx.Err()}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return "", &Error{Kind: ErrSubprocess, OperationID: inv.OperationID, Err: err}
		}
		return "", &Error{Kind: ErrSubprocess, OperationID: inv.OperationID, Detail: detail}
	}
	return stdout.String(), nil
}
