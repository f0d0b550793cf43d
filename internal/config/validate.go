package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/mrz1836/rackbrain/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Credentials and rule files are not required here: commands that need
// them check at use, so `doctor` and `metrics` work without them.
//
// Validation rules:
//   - jira.base_url, when set, must be an http(s) URL
//   - jira.timeout must be positive
//   - processing.min_confidence must be in (0, 1]
//   - processing thresholds must not be negative
//   - polling.max_workers, max_results and interval must be positive
//   - remote and testview timeouts must be positive
//   - cinder.seizo_base_url, when set, must be an http(s) URL
//   - cinder timeout and max_report_chars must be positive
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateJiraConfig(&cfg.Jira); err != nil {
		return err
	}

	if err := validateProcessingConfig(&cfg.Processing); err != nil {
		return err
	}

	if err := validatePollingConfig(&cfg.Polling); err != nil {
		return err
	}

	if cfg.Remote.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidRemote,
			"remote.timeout must be positive, got %s", cfg.Remote.Timeout)
	}

	if cfg.Testview.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidTestview,
			"testview.timeout must be positive, got %s", cfg.Testview.Timeout)
	}

	return validateCinderConfig(&cfg.Cinder)
}

// validateCinderConfig checks the cinder report settings.
func validateCinderConfig(cfg *CinderConfig) error {
	if base := strings.TrimSpace(cfg.SeizoBaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Wrapf(errors.ErrConfigInvalidCinder,
				"cinder.seizo_base_url must be an http(s) URL, got %q", cfg.SeizoBaseURL)
		}
	}

	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidCinder,
			"cinder.timeout must be positive, got %s", cfg.Timeout)
	}

	if cfg.MaxReportChars <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidCinder,
			"cinder.max_report_chars must be positive, got %d", cfg.MaxReportChars)
	}

	return nil
}

// validateJiraConfig checks Jira-specific configuration values.
func validateJiraConfig(cfg *JiraConfig) error {
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Wrapf(errors.ErrConfigInvalidJira,
				"jira.base_url must be an http(s) URL, got %q", cfg.BaseURL)
		}
	}

	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidJira,
			"jira.timeout must be positive, got %s", cfg.Timeout)
	}

	return nil
}

// validateProcessingConfig checks orchestrator thresholds.
func validateProcessingConfig(cfg *ProcessingConfig) error {
	if cfg.MinConfidence <= 0 || cfg.MinConfidence > 1 {
		return errors.Wrapf(errors.ErrConfigInvalidProcessing,
			"processing.min_confidence must be in (0, 1], got %v", cfg.MinConfidence)
	}

	if cfg.MaxSLTAttempts < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidProcessing,
			"processing.max_slt_attempts cannot be negative, got %d", cfg.MaxSLTAttempts)
	}

	if cfg.SameFailureThreshold < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidProcessing,
			"processing.same_failure_threshold cannot be negative, got %d", cfg.SameFailureThreshold)
	}

	return nil
}

// validatePollingConfig checks poll loop settings.
func validatePollingConfig(cfg *PollingConfig) error {
	if cfg.MaxWorkers < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidPolling,
			"polling.max_workers must be at least 1, got %d", cfg.MaxWorkers)
	}

	if cfg.MaxResults < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidPolling,
			"polling.max_results must be at least 1, got %d", cfg.MaxResults)
	}

	if cfg.Interval < time.Second {
		return errors.Wrapf(errors.ErrConfigInvalidPolling,
			"polling.interval must be at least 1s, got %s", cfg.Interval)
	}

	if cfg.LookbackHours < 0 {
		return errors.Wrapf(errors.ErrConfigInvalidPolling,
			"polling.lookback_hours cannot be negative, got %d", cfg.LookbackHours)
	}

	return nil
}
