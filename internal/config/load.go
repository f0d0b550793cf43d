package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/errors"
)

// legacyEnv maps config keys to the environment variable names operators
// already export for the deployed service. They apply in addition to the
// RACKBRAIN_<SECTION>_<KEY> names.
var legacyEnv = map[string]string{
	"database.host":     "RACKBRAIN_DB_HOST",
	"database.port":     "RACKBRAIN_DB_PORT",
	"database.user":     "RACKBRAIN_DB_USER",
	"database.password": "RACKBRAIN_DB_PASS",
	"database.name":     "RACKBRAIN_DB_NAME",
	"audit.log_dir":     "RACKBRAIN_LOG_DIR",
	"paths.state_dir":   "RACKBRAIN_STATE_DIR",

	"cinder.seizo_base_url":    "RACKBRAIN_SEIZO_BASE",
	"cinder.max_report_chars":  "RACKBRAIN_CINDER_REPORT_MAX_CHARS",
	"cinder.database.host":     "RACKBRAIN_CINDER_DB_HOST",
	"cinder.database.user":     "RACKBRAIN_CINDER_DB_USER",
	"cinder.database.password": "RACKBRAIN_CINDER_DB_PASS",
	"cinder.database.name":     "RACKBRAIN_CINDER_DB_NAME",
}

// newViperInstance creates a new Viper instance with standard rackbrain configuration.
// This includes environment variable prefix (RACKBRAIN_), key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, constants.EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config struct, resolves
// relative paths against the directory of source, and validates it.
func unmarshalAndValidate(v *viper.Viper, source string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	cfg.Source = source
	cfg.BaseDir = BaseDirFor(source)
	resolvePaths(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// It is LoadFile with no explicit path.
func Load(ctx context.Context) (*Config, error) {
	return LoadFile(ctx, "")
}

// LoadFile reads configuration with proper precedence. Configuration is
// loaded in the following order (highest precedence first):
//  1. Environment variables (RACKBRAIN_* prefix)
//  2. The explicit file: path, else $RACKBRAIN_CONFIG, else the first
//     project config that exists
//  3. Global config
//  4. Built-in defaults
//
// An explicit file that does not exist is an error; missing project and
// global configs are not.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	v := newViperInstance()

	// Global config provides user-wide defaults that can be overridden per-project
	global, err := loadGlobalConfig(v)
	if err != nil {
		return nil, err
	}

	source, err := loadExplicitOrProjectConfig(v, path)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = global
	}

	cfg, err := unmarshalAndValidate(v, source)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("source", cfg.Source).
		Str("base_dir", cfg.BaseDir).
		Int("rule_files", len(cfg.Rules.Files)).
		Dur("polling.interval", cfg.Polling.Interval).
		Str("timer.db_path", cfg.Timer.DBPath).
		Msg("configuration loaded and unmarshaled")

	return cfg, nil
}

// loadGlobalConfig attempts to load the global config file.
// Returns the path read, or "" if the file doesn't exist or the home
// directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) (string, error) {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return "", nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return "", errors.Wrap(err, "failed to read global config file")
	}
	return globalConfigPath, nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
func getGlobalConfigPathIfExists() (string, bool) {
	globalConfigPath, err := GlobalConfigPath()
	if err != nil {
		return "", false
	}
	if !fileExists(globalConfigPath) {
		return "", false
	}
	return globalConfigPath, true
}

// loadExplicitOrProjectConfig merges the explicit config file, or the first
// project config found, over what v holds. It returns the path merged.
func loadExplicitOrProjectConfig(v *viper.Viper, path string) (string, error) {
	explicit := strings.TrimSpace(path)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(constants.EnvConfig))
	}

	if explicit != "" {
		explicit = expandPath(explicit)
		if !fileExists(explicit) {
			return "", errors.Wrapf(errors.ErrConfigNotFound, "%s", explicit)
		}
		v.SetConfigFile(explicit)
		if err := v.MergeInConfig(); err != nil {
			return "", errors.Wrapf(err, "failed to read config file: %s", explicit)
		}
		return explicit, nil
	}

	for _, candidate := range ProjectConfigPaths() {
		if !fileExists(candidate) {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return "", errors.Wrap(err, "failed to read project config file")
		}
		return candidate, nil
	}
	return "", nil
}

// fileExists returns true if a regular file exists at path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadWithOverrides loads configuration from path (see LoadFile) and
// applies CLI flag overrides, which have the highest precedence.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides.
func LoadWithOverrides(ctx context.Context, path string, overrides *Config) (*Config, error) {
	cfg, err := LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	// Re-validate after applying overrides
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths for testing.
// This function allows precise control over which config files are loaded.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()
	source := ""

	// Load global config first (lower precedence)
	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
		source = globalConfigPath
	}

	// Load project config (higher precedence, merges over global)
	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
		source = projectConfigPath
	}

	return unmarshalAndValidate(v, source)
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.pat", "")
	v.SetDefault("jira.pat_env", d.Jira.PATEnv)
	v.SetDefault("jira.timeout", d.Jira.Timeout.String())

	v.SetDefault("rules.files", []string{})

	v.SetDefault("processing.min_confidence", d.Processing.MinConfidence)
	v.SetDefault("processing.max_slt_attempts", d.Processing.MaxSLTAttempts)
	v.SetDefault("processing.same_failure_threshold", d.Processing.SameFailureThreshold)
	v.SetDefault("processing.required_combined_text_contains", "")
	v.SetDefault("processing.allowed_statuses", d.Processing.AllowedStatuses)
	v.SetDefault("processing.transition_to", d.Processing.TransitionTo)
	v.SetDefault("processing.myself_assignee", d.Processing.MyselfAssignee)
	v.SetDefault("processing.random_assignees", []string{})
	v.SetDefault("processing.repair_release_assignees", []string{})
	v.SetDefault("processing.signature", d.Processing.Signature)
	v.SetDefault("processing.signature_exempt_rules", d.Processing.SignatureExemptRules)

	v.SetDefault("polling.project_key", "")
	v.SetDefault("polling.jql", "")
	v.SetDefault("polling.allowed_statuses", d.Polling.AllowedStatuses)
	v.SetDefault("polling.lookback_hours", d.Polling.LookbackHours)
	v.SetDefault("polling.interval", d.Polling.Interval.String())
	v.SetDefault("polling.max_workers", d.Polling.MaxWorkers)
	v.SetDefault("polling.max_results", d.Polling.MaxResults)
	v.SetDefault("polling.extra_queries", []map[string]any{})

	v.SetDefault("timer.db_path", "")

	v.SetDefault("remote.wrapper_path", "")
	v.SetDefault("remote.runner_path", "")
	v.SetDefault("remote.timeout", d.Remote.Timeout.String())

	v.SetDefault("testview.base_url", "")
	v.SetDefault("testview.cookie", "")
	v.SetDefault("testview.cookie_env", d.Testview.CookieEnv)
	v.SetDefault("testview.timeout", d.Testview.Timeout.String())
	v.SetDefault("testview.verify_tls", false)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.timeout", d.Database.Timeout.String())

	v.SetDefault("cinder.seizo_base_url", "")
	v.SetDefault("cinder.list_path", d.Cinder.ListPath)
	v.SetDefault("cinder.exec_path", d.Cinder.ExecPath)
	v.SetDefault("cinder.timeout", d.Cinder.Timeout.String())
	v.SetDefault("cinder.max_report_chars", d.Cinder.MaxReportChars)
	v.SetDefault("cinder.database.host", "")
	v.SetDefault("cinder.database.port", 0)
	v.SetDefault("cinder.database.user", "")
	v.SetDefault("cinder.database.password", "")
	v.SetDefault("cinder.database.name", "")
	v.SetDefault("cinder.database.timeout", "0s")

	v.SetDefault("audit.log_dir", d.Audit.LogDir)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.history_enabled", d.Audit.HistoryEnabled)
	v.SetDefault("audit.history_include_dry_runs", false)

	v.SetDefault("paths.state_dir", d.Paths.StateDir)
}

// applyOverrides merges non-zero override values into the config.
// Only non-zero values are applied to allow partial overrides.
//
// IMPORTANT: Boolean fields cannot be overridden to false using this
// function because Go's zero value for bool is false. CLI implementations
// should handle boolean flags separately with cmd.Flags().Changed.
func applyOverrides(cfg, overrides *Config) {
	if overrides.Jira.BaseURL != "" {
		cfg.Jira.BaseURL = overrides.Jira.BaseURL
	}
	if len(overrides.Rules.Files) > 0 {
		cfg.Rules.Files = make([]string, 0, len(overrides.Rules.Files))
		for _, f := range overrides.Rules.Files {
			cfg.Rules.Files = append(cfg.Rules.Files, resolveAgainst(cfg.BaseDir, f))
		}
	}
	applyPollingOverrides(cfg, overrides)
}

// applyPollingOverrides applies polling-related overrides to the config.
func applyPollingOverrides(cfg, overrides *Config) {
	if overrides.Polling.JQL != "" {
		cfg.Polling.JQL = overrides.Polling.JQL
	}
	if overrides.Polling.Interval != 0 {
		cfg.Polling.Interval = overrides.Polling.Interval
	}
	if overrides.Polling.MaxWorkers != 0 {
		cfg.Polling.MaxWorkers = overrides.Polling.MaxWorkers
	}
	if overrides.Polling.MaxResults != 0 {
		cfg.Polling.MaxResults = overrides.Polling.MaxResults
	}
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings
// and comma-separated lists from environment variables.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}
