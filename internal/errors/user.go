package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinel errors to their user-facing messages.
// A slice (not a map) keeps errors.Is() chain traversal ordered.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	// ===================
	// Configuration
	// ===================
	{
		err: ErrConfigNotFound,
		info: ErrorInfo{
			Message: "Configuration file not found.",
			Action:  "Pass --config, set RACKBRAIN_CONFIG, or create ~/.rackbrain/config.yaml.",
		},
	},
	{
		err: ErrConfigInvalidJira,
		info: ErrorInfo{
			Message: "Jira configuration is invalid.",
			Action:  "Check jira.base_url and jira.timeout in your config.",
		},
	},
	{
		err: ErrConfigInvalidRules,
		info: ErrorInfo{
			Message: "No rule files are configured.",
			Action:  "Add at least one YAML file under rules.files.",
		},
	},
	{
		err: ErrConfigInvalidProcessing,
		info: ErrorInfo{Message: "Processing configuration is invalid."},
	},
	{
		err: ErrConfigInvalidPolling,
		info: ErrorInfo{Message: "Polling configuration is invalid."},
	},
	{
		err: ErrMissingCredential,
		info: ErrorInfo{
			Message: "A required credential is missing.",
			Action:  "Set RACKBRAIN_JIRA_PAT (and RACKBRAIN_TESTVIEW_COOKIE for TestView rules).",
		},
	},
	{
		err: ErrInvalidOutputFormat,
		info: ErrorInfo{
			Message: "Invalid output format.",
			Action:  "Use --output text or --output json.",
		},
	},

	// ===================
	// Rules
	// ===================
	{
		err: ErrRuleFileMissing,
		info: ErrorInfo{
			Message: "A configured rule file does not exist.",
			Action:  "Fix the path under rules.files or run 'rackbrain doctor'.",
		},
	},
	{
		err: ErrRuleParse,
		info: ErrorInfo{
			Message: "A rule file could not be parsed.",
			Action:  "Run 'rackbrain rules validate' to locate the problem.",
		},
	},
	{
		err: ErrRuleInvalid,
		info: ErrorInfo{
			Message: "A rule definition is invalid.",
			Action:  "Run 'rackbrain rules validate' to locate the problem.",
		},
	},

	// ===================
	// External systems
	// ===================
	{
		err: ErrJiraUnauthorized,
		info: ErrorInfo{
			Message: "Jira rejected the personal access token.",
			Action:  "Refresh the PAT and check its permissions.",
		},
	},
	{
		err: ErrJiraAPI,
		info: ErrorInfo{Message: "Jira returned an error."},
	},
	{
		err: ErrTestviewAPI,
		info: ErrorInfo{
			Message: "TestView returned an error.",
			Action:  "Re-login to TestView and refresh the cookie on this host.",
		},
	},
	{
		err: ErrRemoteWrapperMissing,
		info: ErrorInfo{
			Message: "The remote command wrapper script was not found.",
			Action:  "Set remote.wrapper_path or EVE_CMD_RUNNER_REMOTE_PATH.",
		},
	},
	{
		err: ErrRemoteNotExecuted,
		info: ErrorInfo{Message: "The remote command layer did not execute the command."},
	},
	{
		err: ErrCommandTimeout,
		info: ErrorInfo{
			Message: "A remote command timed out.",
			Action:  "Increase remote.timeout or check target reachability.",
		},
	},
	{
		err: ErrTimerStore,
		info: ErrorInfo{
			Message: "The timer store could not be accessed.",
			Action:  "Check timer.db_path permissions.",
		},
	},
	{
		err: ErrLockHeld,
		info: ErrorInfo{Message: "Another rackbrain process holds the lock."},
	},
}

// errorInfoMap provides O(1) lookup for direct sentinel errors.
//
//nolint:gochecknoglobals // Built once from errorInfoEntries
var errorInfoMap = buildErrorInfoMap()

func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error, falling back to
// errors.Is() traversal for wrapped errors.
func getErrorInfo(err error) ErrorInfo {
	if info, ok := errorInfoMap[err]; ok {
		return info
	}
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}
	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly error message along with a suggested
// action. The action is empty when there is no clear remedy.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}
