package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/errors"
)

const (
	wrapperScriptName = "eve_cmd_runner_remote.sh"
	runnerScriptName  = "eve_cmd_runner.sh"

	// EnvRunnerPath points at the eve_cmd_runner.sh streamed to the jump host.
	EnvRunnerPath = "EVE_CMD_RUNNER_PATH"
)

// statusLineRe matches "[eve_cmd_runner] serial=2547YW117F context=diag status=0".
var statusLineRe = regexp.MustCompile(`\[eve_cmd_runner\]\s+serial=(\S+)\s+context=(\S+)\s+status=(\d+)`)

// Options configures NewRunner.
type Options struct {
	// WrapperPath is the remote wrapper script. Empty means search the
	// usual locations.
	WrapperPath string

	// RunnerPath is the eve_cmd_runner.sh the wrapper streams to the jump
	// host, or runs directly when no wrapper is found.
	RunnerPath string

	// Timeout bounds one command. Zero uses DefaultRemoteTimeout.
	Timeout time.Duration

	Logger zerolog.Logger
	Exec   ProcessRunner
}

// NewRunner returns a WrapperRunner when the remote wrapper script can be
// found, otherwise a LocalRunner driving eve_cmd_runner.sh on this host.
func NewRunner(opts Options) Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultRemoteTimeout
	}
	if opts.Exec == nil {
		opts.Exec = DefaultProcessRunner{}
	}
	runnerPath := FindRunnerScript(opts.RunnerPath)

	if wrapper := FindWrapper(opts.WrapperPath); wrapper != "" {
		return &WrapperRunner{
			path:       wrapper,
			runnerPath: runnerPath,
			timeout:    opts.Timeout,
			exec:       opts.Exec,
			logger:     opts.Logger,
		}
	}
	if runnerPath == "" {
		runnerPath = runnerScriptName
	}
	return &LocalRunner{path: runnerPath, timeout: opts.Timeout, exec: opts.Exec, logger: opts.Logger}
}

// FindWrapper locates eve_cmd_runner_remote.sh: the configured path, then
// $EVE_CMD_RUNNER_REMOTE_PATH, then ./bin, then ~/bin. It returns an
// absolute path or "".
func FindWrapper(configured string) string {
	candidates := []string{configured, os.Getenv(constants.EnvRemoteWrapper)}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "bin", wrapperScriptName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "bin", wrapperScriptName))
	}
	return firstExisting(candidates)
}

// FindRunnerScript locates eve_cmd_runner.sh: the configured path, then
// $EVE_CMD_RUNNER_PATH, then the working directory.
func FindRunnerScript(configured string) string {
	candidates := []string{configured, os.Getenv(EnvRunnerPath)}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, runnerScriptName))
	}
	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			if abs, err := filepath.Abs(c); err == nil {
				return abs
			}
			return c
		}
	}
	return ""
}

// WrapperRunner streams the wrapper script into "bash -s -- <sn> <cmd>".
// The wrapper forwards the command to the jump host and prints a status
// line carrying the real diagnostic exit code.
type WrapperRunner struct {
	path       string
	runnerPath string
	timeout    time.Duration
	exec       ProcessRunner
	logger     zerolog.Logger
}

// Path returns the wrapper script location.
func (w *WrapperRunner) Path() string { return w.path }

// Run executes command against sn. Only a missing or unreadable wrapper
// script is returned as an error; every other failure is reported as a
// Result with Executed false.
func (w *WrapperRunner) Run(ctx context.Context, sn, command string) (Result, error) {
	cmdContext, inner := ParseContext(command)
	res := Result{Serial: sn, Context: cmdContext, Cmd: inner, Status: 1}

	script, err := os.ReadFile(w.path)
	if err != nil {
		return res, errors.Wrapf(errors.ErrRemoteWrapperMissing, "read %s: %v", w.path, err)
	}
	text := strings.ReplaceAll(string(script), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, runErr := w.exec.Exec(runCtx, "/bin/bash", []string{"-s", "--", sn, command},
		text, []string{EnvRunnerPath + "=" + w.runnerPath})
	res.Stdout, res.Stderr = stdout, stderr

	log := w.logger.With().Str("sn", sn).Str("cmd", command).Dur("duration", time.Since(start)).Logger()

	if runErr != nil {
		if stderrors.Is(runErr, context.DeadlineExceeded) {
			res.Stderr = strings.TrimSpace(stderr + "\n" + fmt.Sprintf("%s timed out after %s for SN=%s, cmd=%q",
				wrapperScriptName, w.timeout, sn, command))
			log.Warn().Msg("remote command timed out")
			return res, nil
		}
		res.Stderr = strings.TrimSpace(stderr + "\n" + runErr.Error())
		log.Warn().Err(runErr).Msg("remote wrapper failed to run")
		return res, nil
	}

	serial, parsedCtx, status, ok := ParseStatusLine(stdout + "\n" + stderr)
	if !ok {
		// Wrapper exited before the runner reported a status.
		res.Status = exitCode
		log.Warn().Int("returncode", exitCode).Msg("remote runner did not report a status")
		return res, nil
	}
	res.Serial = serial
	res.Status = status
	if cmdContext == "unknown" {
		res.Context = parsedCtx
	}
	res.Executed = true
	log.Debug().Int("status", status).Msg("remote command finished")
	return res, nil
}

// ParseStatusLine finds the first runner status line in text.
func ParseStatusLine(text string) (serial, cmdContext string, status int, ok bool) {
	m := statusLineRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, false
	}
	return m[1], m[2], n, true
}

// LocalRunner runs eve_cmd_runner.sh directly, for hosts that can reach
// the servers without a jump host.
type LocalRunner struct {
	path    string
	timeout time.Duration
	exec    ProcessRunner
	logger  zerolog.Logger
}

// Run executes "<runner> --sn <sn> --cmd <command>". The process exit code
// is the diagnostic status.
func (l *LocalRunner) Run(ctx context.Context, sn, command string) (Result, error) {
	cmdContext, inner := ParseContext(command)
	res := Result{Serial: sn, Context: cmdContext, Cmd: inner, Status: 1}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := l.exec.Exec(runCtx, l.path, []string{"--sn", sn, "--cmd", command}, "", nil)
	res.Stdout, res.Stderr = stdout, stderr
	if err != nil {
		res.Stderr = strings.TrimSpace(stderr + "\n" + err.Error())
		l.logger.Warn().Err(err).Str("sn", sn).Str("cmd", command).Msg("local runner failed")
		return res, nil
	}
	res.Status = exitCode
	res.Executed = true
	return res, nil
}

var (
	_ Runner = (*WrapperRunner)(nil)
	_ Runner = (*LocalRunner)(nil)
)
