package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/loykin/procstream/internal/env"
)

var ErrNoBinary = errors.New("no binary configured")

// Spec describes one tool invocation. The binary is executed directly with
// Args as its argument vector; no shell is involved.
type Spec struct {
	OperationID string   `json:"operation_id"`
	Binary      string   `json:"binary"`
	Args        []string `json:"args"`
	WorkDir     string   `json:"work_dir"`
	Env         []string `json:"env"`
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Binary) == "" {
		return ErrNoBinary
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for s. Env entries override
// the inherited environment and may reference it as ${VAR}.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- the binary is resolved by the host, args are passed verbatim
	cmd := exec.Command(s.Binary, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = env.FromOS(s.Env)
	}
	configureSysProcAttr(cmd)
	return cmd
}

// BuildCommandContext is BuildCommand bound to ctx: when ctx is done the
// whole process group is killed.
func (s Spec) BuildCommandContext(ctx context.Context) *exec.Cmd {
	// #nosec G204 -- the binary is resolved by the host, args are passed verbatim
	cmd := exec.CommandContext(ctx, s.Binary, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = env.FromOS(s.Env)
	}
	configureSysProcAttr(cmd)
	cmd.Cancel = func() error { return killProcess(cmd.Process.Pid) }
	return cmd
}

// CommandLine renders the argv the way a shell user would type it. Arguments
// containing whitespace or quotes are double-quoted.
func (s Spec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Binary))
	for _, a := range s.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if !strings.ContainsAny(a, " \t\n\"'") {
		return a
	}
	return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
}
