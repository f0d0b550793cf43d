// Package constants provides centralized constant values used throughout rackbrain.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Directory names and paths used by rackbrain for organizing data.
const (
	// RackbrainHome is the hidden directory name where rackbrain stores its data.
	// This directory is created in the user's home directory unless RACKBRAIN_HOME is set.
	RackbrainHome = ".rackbrain"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// StateDir is the directory name where durable state (timer DB, poll state) is stored.
	StateDir = "state"

	// ConfigDir is the directory name that holds config.yaml under RACKBRAIN_HOME.
	ConfigDir = "config"
)

// File permissions for rackbrain-owned files.
const (
	// DirPerm is used for state and log directories.
	DirPerm = 0o750

	// FilePerm is used for logs, state files and the match history.
	FilePerm = 0o600
)

// Environment variables read outside of viper.
const (
	// EnvHome overrides the rackbrain home directory.
	EnvHome = "RACKBRAIN_HOME"

	// EnvConfig points at an explicit config file.
	EnvConfig = "RACKBRAIN_CONFIG"

	// EnvPrefix is the viper environment prefix.
	EnvPrefix = "RACKBRAIN"

	// EnvRemoteWrapper points at the remote command wrapper script.
	EnvRemoteWrapper = "EVE_CMD_RUNNER_REMOTE_PATH"

	// EnvTimerDBPath points at the timer database.
	EnvTimerDBPath = "RACKBRAIN_TIMER_DB_PATH"
)

// Timeout configurations for external collaborators.
const (
	// DefaultRemoteTimeout bounds a single remote diagnostic command.
	DefaultRemoteTimeout = 10 * time.Minute

	// DefaultJiraTimeout bounds a single Jira REST call.
	DefaultJiraTimeout = 30 * time.Second

	// DefaultTestviewTimeout bounds a single TestView HTTP call.
	DefaultTestviewTimeout = 60 * time.Second

	// DefaultPollInterval is the delay between poll cycles.
	DefaultPollInterval = 5 * time.Minute

	// DefaultDBTimeout bounds a single hyvetest query.
	DefaultDBTimeout = 15 * time.Second

	// DefaultSeizoTimeout bounds a single Seizo HTTP call.
	DefaultSeizoTimeout = 20 * time.Second

	// DefaultCinderReportMaxChars caps the cinder verification report.
	DefaultCinderReportMaxChars = 8000
)

// Processing defaults.
const (
	// DefaultMinConfidence is the classifier threshold used by the orchestrator.
	DefaultMinConfidence = 0.75

	// DefaultMaxSLTAttempts is the attempt count above which tickets are skipped.
	DefaultMaxSLTAttempts = 15

	// DefaultSameFailureThreshold is the count of identical consecutive failures
	// at which tickets are skipped.
	DefaultSameFailureThreshold = 2

	// DefaultMaxWorkers is the poller worker pool size.
	DefaultMaxWorkers = 4

	// DefaultMaxResults is the default Jira search page size.
	DefaultMaxResults = 50

	// DefaultLookbackHours limits the default poll JQL to recently updated tickets.
	DefaultLookbackHours = 24

	// DefaultRunsLimit is how many SLT runs are fetched per server.
	DefaultRunsLimit = 20

	// MaxStdoutBytes truncates recorded command stdout.
	MaxStdoutBytes = 4000

	// NoIPStatus is the wrapper exit status for a target without an IP.
	NoIPStatus = 10

	// MetricsRetentionDays limits which processing logs metrics consider.
	MetricsRetentionDays = 30

	// EditedWindowReset is the inactivity gap after which the edited-today list restarts.
	EditedWindowReset = 12 * time.Hour
)

// Comment decoration.
const (
	// DefaultSignature is appended to every posted comment unless the rule is exempt.
	DefaultSignature = "🤖"

	// SLTOperation is the default TestView operation for SLT starts.
	SLTOperation = "SLT"

	// IlomOpenProblemsCmd lists open problems on an EVE server's ILOM.
	IlomOpenProblemsCmd = "{ilom} show System/Open_Problems"

	// CloseTransitionComment is posted when a rule closes a ticket after an SLT start.
	CloseTransitionComment = "RackBrain auto-close: SLT started per rule; closing ticket."
)

// Jira workflow names.
const (
	// StatusOpen is the status of a new ticket.
	StatusOpen = "Open"

	// StatusInProgress is the default transition target and the
	// prerequisite step before any other transition.
	StatusInProgress = "In Progress"
)
