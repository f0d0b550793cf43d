// Package remote runs diagnostic commands against a server through the
// eve_cmd_runner wrapper scripts.
//
// Commands carry a context prefix naming the interface they target, for
// example "{ilom} show /SYS" or "{diag} hwdiag io config".
package remote

import (
	"context"
	"strings"

	"github.com/mrz1836/rackbrain/internal/constants"
)

// Result is the outcome of one remote command.
//
// Executed is false when the wrapper itself did not run the command (no
// status line, timeout, missing script). Callers must treat that as an
// infrastructure failure, distinct from a command that ran and exited
// non-zero.
type Result struct {
	Serial   string
	Context  string
	Cmd      string
	Status   int
	Stdout   string
	Stderr   string
	Executed bool
}

// OK reports whether the command ran and exited 0.
func (r Result) OK() bool {
	return r.Executed && r.Status == 0
}

// NoIP reports whether the target interface had no IP address.
func (r Result) NoIP() bool {
	return r.Status == constants.NoIPStatus
}

// Runner executes a context-prefixed command against the server with serial sn.
type Runner interface {
	Run(ctx context.Context, sn, command string) (Result, error)
}

// ParseContext splits "{ctx} rest" into ("ctx", "rest"). Commands without
// a prefix report context "unknown" and are returned unchanged.
func ParseContext(command string) (name, inner string) {
	if !strings.HasPrefix(command, "{") {
		return "unknown", command
	}
	i := strings.Index(command, "}")
	if i < 0 {
		return "unknown", command
	}
	return strings.Trim(command[:i], "{}"), strings.TrimSpace(command[i+1:])
}
