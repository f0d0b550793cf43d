// Package errors provides centralized error handling for rackbrain.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigNotFound indicates that an explicitly requested config file was not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalidJira indicates an invalid jira configuration value.
	ErrConfigInvalidJira = errors.New("invalid jira configuration")

	// ErrConfigInvalidRules indicates an invalid rules configuration value.
	ErrConfigInvalidRules = errors.New("invalid rules configuration")

	// ErrConfigInvalidProcessing indicates an invalid processing configuration value.
	ErrConfigInvalidProcessing = errors.New("invalid processing configuration")

	// ErrConfigInvalidPolling indicates an invalid polling configuration value.
	ErrConfigInvalidPolling = errors.New("invalid polling configuration")

	// ErrConfigInvalidRemote indicates an invalid remote execution configuration value.
	ErrConfigInvalidRemote = errors.New("invalid remote configuration")

	// ErrConfigInvalidTestview indicates an invalid TestView configuration value.
	ErrConfigInvalidTestview = errors.New("invalid testview configuration")

	// ErrConfigInvalidCinder indicates invalid cinder report configuration.
	ErrConfigInvalidCinder = errors.New("invalid cinder configuration")

	// ErrMissingCredential indicates that a required credential (PAT, cookie) is not set.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrRuleFileMissing indicates that a configured rule file does not exist.
	ErrRuleFileMissing = errors.New("rule file not found")

	// ErrRuleParse indicates that a rule file could not be parsed into rules.
	ErrRuleParse = errors.New("failed to parse rule file")

	// ErrRuleInvalid indicates a structurally invalid rule definition.
	ErrRuleInvalid = errors.New("invalid rule definition")

	// ErrRemoteWrapperMissing indicates the remote command wrapper script could not be located.
	ErrRemoteWrapperMissing = errors.New("remote command wrapper not found")

	// ErrRemoteNotExecuted indicates the remote execution layer itself did not run the command.
	// This is distinct from a command that ran and exited non-zero.
	ErrRemoteNotExecuted = errors.New("remote command not executed")

	// ErrCommandTimeout indicates that a command exceeded its timeout.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrCommandFailed indicates that a command execution failed.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandNotConfigured indicates that a mock command was not configured in tests.
	ErrCommandNotConfigured = errors.New("command not configured")

	// ErrJiraAPI indicates that a Jira REST call returned an error status.
	ErrJiraAPI = errors.New("jira api error")

	// ErrJiraUnauthorized indicates that Jira rejected the PAT.
	ErrJiraUnauthorized = errors.New("jira unauthorized")

	// ErrTransitionNotFound indicates that no transition with the requested name exists.
	ErrTransitionNotFound = errors.New("transition not found")

	// ErrUnsupportedLinkType indicates an issue link type rackbrain cannot map.
	ErrUnsupportedLinkType = errors.New("unsupported issue link type")

	// ErrTestviewAPI indicates that a TestView HTTP call returned an error status.
	ErrTestviewAPI = errors.New("testview api error")

	// ErrTestviewRunNotFound indicates that no failing SLT run matched the request.
	ErrTestviewRunNotFound = errors.New("testview run not found")

	// ErrLookupUnavailable indicates that the relational lookup is not configured.
	ErrLookupUnavailable = errors.New("lookup unavailable")

	// ErrCinderReport indicates that a cinder verification report could not be built.
	ErrCinderReport = errors.New("cinder report failed")

	// ErrTimerStore indicates a failure in the persistent timer store.
	ErrTimerStore = errors.New("timer store failure")

	// ErrTemplateKeyMissing indicates a comment template referenced an unknown placeholder.
	ErrTemplateKeyMissing = errors.New("template placeholder missing")

	// ErrTemplateMalformed indicates a comment template with unbalanced braces.
	ErrTemplateMalformed = errors.New("template malformed")

	// ErrAuditWrite indicates that an audit log entry could not be written.
	ErrAuditWrite = errors.New("audit write failed")

	// ErrLockHeld indicates that a file lock is held by another process.
	ErrLockHeld = errors.New("file lock held by another process")

	// ErrTicketPanic indicates that processing a ticket panicked.
	ErrTicketPanic = errors.New("ticket processing panicked")
)

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}
