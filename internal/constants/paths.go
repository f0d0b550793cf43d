package constants

// Log file names and patterns.
const (
	// CLILogFileName is the name of the global CLI log file.
	// This file is located in ~/.rackbrain/logs/rackbrain.log
	CLILogFileName = "rackbrain.log"

	// ProcessedLogPrefix prefixes the per-day processing log files.
	ProcessedLogPrefix = "rackbrain_processed_"

	// ProcessedLogSuffix is the extension of the per-day processing log files.
	ProcessedLogSuffix = ".log"

	// MatchHistoryFileName holds the per-rule match history.
	MatchHistoryFileName = "rackbrain_rule_matches.txt"
)

// State file names.
const (
	// TimerDBFileName is the sqlite database backing the timer store.
	TimerDBFileName = "rackbrain_state.sqlite"

	// EditedStateFileName tracks the edited-today window for the poll loop.
	EditedStateFileName = "edited_today_state.json"
)

// Configuration file names.
const (
	// GlobalConfigName is the name of the global rackbrain configuration file.
	// This file is located in the rackbrain home directory.
	GlobalConfigName = "config.yaml"

	// ProjectConfigDir is the project-level config directory.
	ProjectConfigDir = ".rackbrain"
)

// Log rotation settings for the CLI log file.
const (
	// LogMaxSizeMB is the size at which the CLI log rotates.
	LogMaxSizeMB = 10

	// LogMaxBackups is how many rotated CLI logs are kept.
	LogMaxBackups = 5

	// LogMaxAgeDays is how long rotated CLI logs are kept.
	LogMaxAgeDays = 30

	// LogCompress gzips rotated CLI logs.
	LogCompress = true
)
