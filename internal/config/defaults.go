package config

import (
	"github.com/mrz1836/rackbrain/internal/constants"
)

// Default environment variable names for credentials.
const (
	DefaultPATEnv    = "RACKBRAIN_JIRA_PAT"
	DefaultCookieEnv = "HYVE_TESTVIEW_COOKIE"
)

// DefaultConfig returns a new Config with default values.
// These defaults are used as the base layer that can be overridden by
// config files, environment variables, and CLI flags.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			PATEnv:  DefaultPATEnv,
			Timeout: constants.DefaultJiraTimeout,
		},
		Processing: ProcessingConfig{
			MinConfidence:        constants.DefaultMinConfidence,
			MaxSLTAttempts:       constants.DefaultMaxSLTAttempts,
			SameFailureThreshold: constants.DefaultSameFailureThreshold,
			AllowedStatuses:      []string{constants.StatusOpen, constants.StatusInProgress},
			TransitionTo:         constants.StatusInProgress,

			// Empty myself means "the PAT owner", resolved by Jira itself.
			MyselfAssignee: "",

			Signature:            constants.DefaultSignature,
			SignatureExemptRules: []string{"approval_request_ack", "cinder_verification_close"},
		},
		Polling: PollingConfig{
			AllowedStatuses: []string{constants.StatusOpen, constants.StatusInProgress},
			LookbackHours:   constants.DefaultLookbackHours,
			Interval:        constants.DefaultPollInterval,
			MaxWorkers:      constants.DefaultMaxWorkers,
			MaxResults:      constants.DefaultMaxResults,
		},
		Remote: RemoteConfig{
			Timeout: constants.DefaultRemoteTimeout,
		},
		Testview: TestviewConfig{
			CookieEnv: DefaultCookieEnv,
			Timeout:   constants.DefaultTestviewTimeout,
		},
		Database: DatabaseConfig{
			Port:    3306,
			Timeout: constants.DefaultDBTimeout,
		},
		Cinder: CinderConfig{
			ListPath:       "/execution/list",
			ExecPath:       "/execution",
			Timeout:        constants.DefaultSeizoTimeout,
			MaxReportChars: constants.DefaultCinderReportMaxChars,
		},
		Audit: AuditConfig{
			LogDir:         constants.LogsDir,
			Enabled:        true,
			HistoryEnabled: true,
		},
		Paths: PathsConfig{
			StateDir: constants.StateDir,
		},
	}
}
