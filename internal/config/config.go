// Package config provides configuration management for rackbrain with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (RACKBRAIN_* prefix, plus the legacy names bound in bindLegacyEnv)
//  3. Explicit config file (--config or RACKBRAIN_CONFIG)
//  4. Project config (.rackbrain/config.yaml or config/config.yaml)
//  5. Global config ($RACKBRAIN_HOME/config/config.yaml or ~/.rackbrain/config.yaml)
//  6. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import (
	"os"
	"strings"
	"time"
)

// Config is the root configuration structure for rackbrain.
type Config struct {
	// Jira contains the REST endpoint and credentials.
	Jira JiraConfig `yaml:"jira" mapstructure:"jira"`

	// Rules lists the YAML rule files to load.
	Rules RulesConfig `yaml:"rules" mapstructure:"rules"`

	// Processing controls the per-ticket workflow.
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`

	// Polling controls the poll loop.
	Polling PollingConfig `yaml:"polling" mapstructure:"polling"`

	// Timer locates the timer database.
	Timer TimerConfig `yaml:"timer" mapstructure:"timer"`

	// Remote configures the remote diagnostic command wrapper.
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// Testview configures the TestView HTTP client.
	Testview TestviewConfig `yaml:"testview" mapstructure:"testview"`

	// Database configures the hyvetest lookup.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Cinder configures the cinder verification report.
	Cinder CinderConfig `yaml:"cinder" mapstructure:"cinder"`

	// Audit configures the processing log and match history.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Paths holds directories for durable state.
	Paths PathsConfig `yaml:"paths" mapstructure:"paths"`

	// Source is the config file that was read last, empty when only
	// defaults and environment were used.
	Source string `yaml:"-" mapstructure:"-"`

	// BaseDir is the directory relative paths were resolved against.
	BaseDir string `yaml:"-" mapstructure:"-"`
}

// JiraConfig contains Jira REST settings.
type JiraConfig struct {
	// BaseURL is the Jira server root, e.g. https://jira.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// PAT is the personal access token. Prefer PATEnv.
	PAT string `yaml:"pat" mapstructure:"pat"`

	// PATEnv names the environment variable holding the PAT.
	// Default: "RACKBRAIN_JIRA_PAT"
	PATEnv string `yaml:"pat_env" mapstructure:"pat_env"`

	// Timeout bounds one REST call.
	// Default: 30 seconds
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Token returns the configured PAT, falling back to the PATEnv variable.
func (j JiraConfig) Token() string {
	if pat := strings.TrimSpace(j.PAT); pat != "" {
		return pat
	}
	if j.PATEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(j.PATEnv))
}

// TokenSource describes where Token found the PAT, for diagnostics.
func (j JiraConfig) TokenSource() string {
	if strings.TrimSpace(j.PAT) != "" {
		return "config"
	}
	return j.PATEnv
}

// RulesConfig lists rule files.
type RulesConfig struct {
	// Files are loaded in order; rule declaration order breaks classifier ties.
	Files []string `yaml:"files" mapstructure:"files"`
}

// ProcessingConfig controls the orchestrator.
type ProcessingConfig struct {
	MinConfidence                float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxSLTAttempts               int      `yaml:"max_slt_attempts" mapstructure:"max_slt_attempts"`
	SameFailureThreshold         int      `yaml:"same_failure_threshold" mapstructure:"same_failure_threshold"`
	RequiredCombinedTextContains string   `yaml:"required_combined_text_contains" mapstructure:"required_combined_text_contains"`
	AllowedStatuses              []string `yaml:"allowed_statuses" mapstructure:"allowed_statuses"`
	TransitionTo                 string   `yaml:"transition_to" mapstructure:"transition_to"`
	MyselfAssignee               string   `yaml:"myself_assignee" mapstructure:"myself_assignee"`
	RandomAssignees              []string `yaml:"random_assignees" mapstructure:"random_assignees"`
	RepairReleaseAssignees       []string `yaml:"repair_release_assignees" mapstructure:"repair_release_assignees"`

	// Signature is appended to posted comments.
	Signature string `yaml:"signature" mapstructure:"signature"`

	// SignatureExemptRules get no signature.
	SignatureExemptRules []string `yaml:"signature_exempt_rules" mapstructure:"signature_exempt_rules"`
}

// PollingConfig controls the poll loop.
type PollingConfig struct {
	// ProjectKey builds the default JQL when JQL is empty.
	ProjectKey string `yaml:"project_key" mapstructure:"project_key"`

	// JQL replaces the default query entirely.
	JQL string `yaml:"jql" mapstructure:"jql"`

	// AllowedStatuses feed the default JQL.
	AllowedStatuses []string `yaml:"allowed_statuses" mapstructure:"allowed_statuses"`

	LookbackHours int           `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
	MaxWorkers    int           `yaml:"max_workers" mapstructure:"max_workers"`
	MaxResults    int           `yaml:"max_results" mapstructure:"max_results"`

	// ExtraQueries run after the primary query with a restricted rule set.
	ExtraQueries []ExtraQueryConfig `yaml:"extra_queries" mapstructure:"extra_queries"`
}

// ExtraQueryConfig is one secondary poll query.
type ExtraQueryConfig struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	JQL         string   `yaml:"jql" mapstructure:"jql"`
	OnlyRuleIDs []string `yaml:"only_rule_ids" mapstructure:"only_rule_ids"`
	MaxResults  int      `yaml:"max_results" mapstructure:"max_results"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`
}

// IsEnabled reports whether the query should run.
func (q ExtraQueryConfig) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// TimerConfig locates the timer database.
type TimerConfig struct {
	// DBPath overrides the default $RACKBRAIN_HOME/state location.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// RemoteConfig configures remote command execution.
type RemoteConfig struct {
	WrapperPath string        `yaml:"wrapper_path" mapstructure:"wrapper_path"`
	RunnerPath  string        `yaml:"runner_path" mapstructure:"runner_path"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TestviewConfig configures the TestView client.
type TestviewConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Cookie is sent verbatim. Prefer CookieEnv.
	Cookie string `yaml:"cookie" mapstructure:"cookie"`

	// CookieEnv names the environment variable holding the cookie.
	CookieEnv string `yaml:"cookie_env" mapstructure:"cookie_env"`

	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	VerifyTLS bool          `yaml:"verify_tls" mapstructure:"verify_tls"`
}

// CookieValue returns the configured cookie, falling back to CookieEnv.
func (t TestviewConfig) CookieValue() string {
	if c := strings.TrimSpace(t.Cookie); c != "" {
		return c
	}
	if t.CookieEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(t.CookieEnv))
}

// DatabaseConfig configures the hyvetest MySQL lookup. Leaving any of host,
// user, password or name empty disables lookups.
type DatabaseConfig struct {
	Host     string        `yaml:"host" mapstructure:"host"`
	Port     int           `yaml:"port" mapstructure:"port"`
	User     string        `yaml:"user" mapstructure:"user"`
	Password string        `yaml:"password" mapstructure:"password"`
	Name     string        `yaml:"name" mapstructure:"name"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CinderConfig configures the cinder verification report.
type CinderConfig struct {
	// SeizoBaseURL is the Seizo API root. Reports fail while it is empty.
	SeizoBaseURL   string        `yaml:"seizo_base_url" mapstructure:"seizo_base_url"`
	ListPath       string        `yaml:"list_path" mapstructure:"list_path"`
	ExecPath       string        `yaml:"exec_path" mapstructure:"exec_path"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxReportChars int           `yaml:"max_report_chars" mapstructure:"max_report_chars"`

	// Database holds the outpost_fru connection. Empty fields fall back to
	// the database section.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// ResolvedDatabase returns the outpost_fru connection settings with every
// empty field taken from base.
func (c CinderConfig) ResolvedDatabase(base DatabaseConfig) DatabaseConfig {
	out := c.Database
	if strings.TrimSpace(out.Host) == "" {
		out.Host = base.Host
	}
	if out.Port == 0 {
		out.Port = base.Port
	}
	if strings.TrimSpace(out.User) == "" {
		out.User = base.User
	}
	if strings.TrimSpace(out.Password) == "" {
		out.Password = base.Password
	}
	if strings.TrimSpace(out.Name) == "" {
		out.Name = base.Name
	}
	if out.Timeout <= 0 {
		out.Timeout = base.Timeout
	}
	return out
}

// AuditConfig configures the processing log and match history.
type AuditConfig struct {
	// LogDir holds the daily processing logs and the match history.
	LogDir string `yaml:"log_dir" mapstructure:"log_dir"`

	// Enabled turns the processing log on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// HistoryEnabled turns the per-rule match history on.
	HistoryEnabled bool `yaml:"history_enabled" mapstructure:"history_enabled"`

	// HistoryIncludeDryRuns records dry-run matches in the history too.
	HistoryIncludeDryRuns bool `yaml:"history_include_dry_runs" mapstructure:"history_include_dry_runs"`
}

// PathsConfig holds durable state locations.
type PathsConfig struct {
	StateDir string `yaml:"state_dir" mapstructure:"state_dir"`
}
