package domain

import (
	"strconv"
	"strings"
)

// FieldPresence describes whether a record knows a field and has a value for it.
type FieldPresence int

const (
	// FieldAbsent means the record has no such field. Scope constraints on
	// absent fields are ignored.
	FieldAbsent FieldPresence = iota

	// FieldNull means the field exists but carries no value.
	FieldNull

	// FieldPresent means the field has a value.
	FieldPresent
)

// String returns the presence name.
func (p FieldPresence) String() string {
	switch p {
	case FieldAbsent:
		return "absent"
	case FieldNull:
		return "null"
	case FieldPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Value is a field value: either a scalar string or a list of strings.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// ScalarValue builds a scalar Value.
func ScalarValue(s string) Value { return Value{Scalar: s} }

// ListValue builds a list Value.
func ListValue(items []string) Value { return Value{List: items, IsList: true} }

// String renders the value as text. Lists render like "a, b".
func (v Value) String() string {
	if v.IsList {
		return strings.Join(v.List, ", ")
	}
	return v.Scalar
}

// FieldSource is anything scope constraints can be evaluated against.
type FieldSource interface {
	Field(name string) (Value, FieldPresence)
}

func textField(s string) (Value, FieldPresence) {
	if s == "" {
		return Value{}, FieldNull
	}
	return ScalarValue(s), FieldPresent
}

// listField reports a list as present even when empty: an empty list is a
// value, so not_contains constraints over it hold.
func listField(items []string) (Value, FieldPresence) {
	return ListValue(items), FieldPresent
}

func intField(n *int) (Value, FieldPresence) {
	if n == nil {
		return Value{}, FieldNull
	}
	return ScalarValue(strconv.Itoa(*n)), FieldPresent
}

func int64Field(n *int64) (Value, FieldPresence) {
	if n == nil {
		return Value{}, FieldNull
	}
	return ScalarValue(strconv.FormatInt(*n, 10)), FieldPresent
}

func floatField(f *float64) (Value, FieldPresence) {
	if f == nil {
		return Value{}, FieldNull
	}
	return ScalarValue(strconv.FormatFloat(*f, 'f', -1, 64)), FieldPresent
}

func boolField(b bool) (Value, FieldPresence) {
	return ScalarValue(strconv.FormatBool(b)), FieldPresent
}

// Field looks up a record field by its scope name.
//
//nolint:gocyclo,funlen // flat enumeration of every known field
func (r *Record) Field(name string) (Value, FieldPresence) {
	switch name {
	case "ticket_key", "key":
		return textField(r.Ticket.Key)
	case "summary":
		return textField(r.Ticket.Summary)
	case "description":
		return textField(r.Ticket.Description)
	case "sn":
		return textField(r.SN)
	case "combined_text":
		return textField(r.CombinedText)
	case "arch":
		return textField(r.Arch)
	case "testcase":
		return textField(r.Testcase)
	case "error_details":
		return textField(r.ErrorDetails)
	case "model":
		return textField(r.Model)
	case "customer_ipn":
		return textField(r.CustomerIPN)
	case "rack_sn":
		return textField(r.RackSN)
	case "slt_rack_sn":
		return textField(r.SLTRackSN)
	case "server_status_id":
		return int64Field(r.ServerStatusID)
	case "failure_message":
		return textField(r.FailureMessage)
	case "failed_testset":
		return textField(r.FailedTestset)
	case "server_error_detail":
		return textField(r.ServerErrorDetail)
	case "tester_email":
		return textField(r.TesterEmail)
	case "ilom_open_problems_raw":
		return textField(r.IlomOpenProblemsRaw)
	case "ilom_components":
		return listField(r.IlomComponents())
	case "evbot_version":
		return textField(r.EvbotVersion)
	case "jira_server_status_id":
		return textField(r.JiraServerStatusID)
	case "jira_server_ok":
		return textField(r.JiraServerOK)
	case "jira_slt_attempts":
		return textField(r.JiraSLTAttempts)
	case "jira_model":
		return textField(r.JiraModel)
	case "jira_customer_ipn":
		return textField(r.JiraCustomerIPN)
	case "jira_slt_rack_sn":
		return textField(r.JiraSLTRackSN)
	case "jira_tm2_version":
		return textField(r.JiraTM2Version)
	case "jira_tester_email":
		return textField(r.JiraTesterEmail)
	case "jira_test_started":
		return textField(r.JiraTestStarted)
	case "jira_test_finished":
		return textField(r.JiraTestFinished)
	case "jira_test_duration_minutes":
		return floatField(r.JiraTestDurationMinutes)
	case "jira_status":
		return textField(r.Ticket.Status)
	case "jira_updated":
		return textField(r.Ticket.Updated)
	case "jira_assignee":
		return textField(r.Ticket.Assignee)
	case "jira_reporter":
		return textField(r.Ticket.Reporter)
	case "jira_customer":
		return textField(r.Ticket.Customer)
	case "jira_location":
		return textField(r.Ticket.Location)
	case "db_failed_testcase":
		return textField(r.DBFailedTestcase)
	case "db_failed_testcase_list":
		return listField(r.DBFailedTestcaseList)
	case "db_same_failure_count":
		return intField(r.DBSameFailureCount)
	case "db_latest_slt_id":
		return int64Field(r.DBLatestSLTID)
	case "db_latest_failed_testset":
		return textField(r.DBLatestFailedTestset)
	case "testview_log_text":
		return textField(r.TestviewLogText)
	case "testview_log_snippet":
		return textField(r.TestviewLogSnippet)
	case "testview_log_error":
		return textField(r.TestviewLogError)
	case "telnet_cmd":
		return textField(r.TelnetCmd)
	case "jira_comments_text":
		return textField(r.JiraCommentsText)
	case "jira_latest_comment_text":
		return textField(r.JiraLatestCommentText)
	case "jira_latest_comment_author":
		return textField(r.JiraLatestCommentAuthor)
	case "jira_latest_comment_author_display_name":
		return textField(r.JiraLatestCommentAuthorDisplayName)
	case "jira_latest_comment_author_email":
		return textField(r.JiraLatestCommentAuthorEmail)
	case "timer_expired_for":
		return listField(r.TimerExpiredFor)
	case "slt_validate_status":
		return intField(r.SLTValidateStatus)
	case "slt_validate_response":
		return textField(r.SLTValidateResponse)
	case "slt_start_status":
		return intField(r.SLTStartStatus)
	case "slt_start_response":
		return textField(r.SLTStartResponse)
	case "precheck_marker_found", "precheck_latest_comment_is_pass", "precheck_phrase_found", "precheck_phrase_source":
		return r.precheckField(name)
	case "cinder_report":
		return textField(r.CinderReport)
	default:
		return Value{}, FieldAbsent
	}
}

// precheckField reports the precheck fields as absent until the precheck
// evaluation ran.
func (r *Record) precheckField(name string) (Value, FieldPresence) {
	pc := r.Precheck
	if pc == nil {
		return Value{}, FieldAbsent
	}
	switch name {
	case "precheck_marker_found":
		return boolField(pc.MarkerFound)
	case "precheck_latest_comment_is_pass":
		return boolField(pc.LatestCommentIsPass)
	case "precheck_phrase_found":
		return boolField(pc.PhraseFound)
	default:
		return textField(pc.PhraseSource)
	}
}

// Text resolves a dotted source path such as "failure_message" or
// "ticket.description" to text. Unknown paths resolve to "".
func (r *Record) Text(path string) string {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "ticket."); ok {
		switch rest {
		case "key":
			return r.Ticket.Key
		case "summary":
			return r.Ticket.Summary
		case "description":
			return r.Ticket.Description
		case "status":
			return r.Ticket.Status
		case "assignee":
			return r.Ticket.Assignee
		default:
			return ""
		}
	}
	v, p := r.Field(path)
	if p != FieldPresent {
		return ""
	}
	return v.String()
}

// IlomComponents returns the unique components of the open problems in
// first-seen order.
func (r *Record) IlomComponents() []string {
	if len(r.IlomProblems) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(r.IlomProblems))
	out := make([]string, 0, len(r.IlomProblems))
	for _, p := range r.IlomProblems {
		if p.Component == "" {
			continue
		}
		if _, ok := seen[p.Component]; ok {
			continue
		}
		seen[p.Component] = struct{}{}
		out = append(out, p.Component)
	}
	return out
}
