package remote

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// ProcessRunner starts a local process. It exists so tests can replace the
// real subprocess.
type ProcessRunner interface {
	// Exec runs name with args, feeding stdin and appending env to the
	// current environment.
	Exec(ctx context.Context, name string, args []string, stdin string, env []string) (stdout, stderr string, exitCode int, err error)
}

// DefaultProcessRunner implements ProcessRunner using os/exec.
type DefaultProcessRunner struct{}

// Exec runs the process to completion. A non-zero exit is reported through
// exitCode with a nil error; err is set only when the process could not be
// started or was killed by ctx.
func (DefaultProcessRunner) Exec(ctx context.Context, name string, args []string, stdin string, env []string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // wrapper path and args come from trusted config and rules
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if runErr == nil {
		return stdout, stderr, 0, nil
	}
	if ctx.Err() != nil {
		return stdout, stderr, -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout, stderr, exitErr.ExitCode(), nil
	}
	return stdout, stderr, -1, runErr
}

var _ ProcessRunner = DefaultProcessRunner{}
