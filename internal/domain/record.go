// Package domain provides shared domain types for rackbrain.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import (
	"strconv"
	"strings"
)

// Comment is a single Jira comment as rackbrain sees it.
type Comment struct {
	ID                string `json:"id"`
	Author            string `json:"author"`
	AuthorDisplayName string `json:"author_display_name"`
	AuthorEmail       string `json:"author_email"`
	Body              string `json:"body"`
	Created           string `json:"created"`
	Updated           string `json:"updated"`
}

// Ticket is the clean representation of a Jira issue.
type Ticket struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Assignee    string    `json:"assignee"`
	Reporter    string    `json:"reporter"`
	Updated     string    `json:"updated"`
	Customer    string    `json:"customer"`
	Location    string    `json:"location"`
	Comments    []Comment `json:"comments,omitempty"`
}

// IlomProblem is one open problem reported by the service processor.
type IlomProblem struct {
	Component   string `json:"component"`
	Description string `json:"description"`
}

// Record is the enriched view of one ticket: the ticket itself plus
// everything learned from text extraction, the test-history database,
// TestView and the service processor.
//
// An empty string field means "not known". Numeric fields that may be
// unknown are pointers.
type Record struct {
	Ticket       Ticket `json:"ticket"`
	SN           string `json:"sn"`
	CombinedText string `json:"combined_text"`

	// Derived from the ticket text.
	Arch         string `json:"arch"`
	Testcase     string `json:"testcase"`
	ErrorDetails string `json:"error_details"`

	// From the test-history database.
	Model             string `json:"model"`
	CustomerIPN       string `json:"customer_ipn"`
	RackSN            string `json:"rack_sn"`
	SLTRackSN         string `json:"slt_rack_sn"`
	ServerStatusID    *int64 `json:"server_status_id,omitempty"`
	FailureMessage    string `json:"failure_message"`
	FailedTestset     string `json:"failed_testset"`
	ServerErrorDetail string `json:"server_error_detail"`
	TesterEmail       string `json:"tester_email"`

	IlomProblems        []IlomProblem `json:"ilom_problems,omitempty"`
	IlomOpenProblemsRaw string        `json:"ilom_open_problems_raw"`

	// Key/value lines parsed from the ticket description.
	EvbotVersion            string   `json:"evbot_version"`
	JiraServerStatusID      string   `json:"jira_server_status_id"`
	JiraServerOK            string   `json:"jira_server_ok"`
	JiraSLTAttempts         string   `json:"jira_slt_attempts"`
	JiraModel               string   `json:"jira_model"`
	JiraCustomerIPN         string   `json:"jira_customer_ipn"`
	JiraSLTRackSN           string   `json:"jira_slt_rack_sn"`
	JiraTM2Version          string   `json:"jira_tm2_version"`
	JiraTesterEmail         string   `json:"jira_tester_email"`
	JiraTestStarted         string   `json:"jira_test_started"`
	JiraTestFinished        string   `json:"jira_test_finished"`
	JiraTestDurationMinutes *float64 `json:"jira_test_duration_minutes,omitempty"`

	// TestView and run history.
	DBFailedTestcase      string   `json:"db_failed_testcase"`
	DBFailedTestcaseList  []string `json:"db_failed_testcase_list,omitempty"`
	DBSameFailureCount    *int     `json:"db_same_failure_count,omitempty"`
	DBLatestSLTID         *int64   `json:"db_latest_slt_id,omitempty"`
	DBLatestFailedTestset string   `json:"db_latest_failed_testset"`
	TestviewLogText       string   `json:"testview_log_text"`
	TestviewLogSnippet    string   `json:"testview_log_snippet"`
	TestviewLogError      string   `json:"testview_log_error"`

	TelnetCmd string `json:"telnet_cmd"`

	JiraCommentsText                    string `json:"jira_comments_text"`
	JiraLatestCommentText               string `json:"jira_latest_comment_text"`
	JiraLatestCommentAuthor             string `json:"jira_latest_comment_author"`
	JiraLatestCommentAuthorDisplayName  string `json:"jira_latest_comment_author_display_name"`
	JiraLatestCommentAuthorEmail        string `json:"jira_latest_comment_author_email"`

	// TimerExpiredFor lists rule ids whose timers expired under the
	// ticket's current rearm key.
	TimerExpiredFor []string `json:"timer_expired_for,omitempty"`

	CommandHistory []CommandResult `json:"command_history,omitempty"`

	// SLT start results.
	SLTValidateStatus   *int   `json:"slt_validate_status,omitempty"`
	SLTValidateResponse string `json:"slt_validate_response"`
	SLTStartStatus      *int   `json:"slt_start_status,omitempty"`
	SLTStartResponse    string `json:"slt_start_response"`

	// Precheck is set only for precheck tickets in Open.
	Precheck *Precheck `json:"precheck,omitempty"`

	// CinderReport is the verification report built for a cinder
	// verification ticket.
	CinderReport string `json:"cinder_report"`
}

// Precheck is what the precheck evaluation found on a ticket.
type Precheck struct {
	MarkerFound         bool `json:"marker_found"`
	LatestCommentIsPass bool `json:"latest_comment_is_pass"`
	PhraseFound         bool `json:"phrase_found"`

	// PhraseSource is "description" or "comments", empty when the phrase
	// was not found.
	PhraseSource string `json:"phrase_source"`
}

// SLTAttempts returns the integer attempt count parsed from the ticket,
// or false when it is missing or not a number.
func (r *Record) SLTAttempts() (int, bool) {
	s := strings.TrimSpace(r.JiraSLTAttempts)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SameFailureCount returns the consecutive same-failure count, zero when unknown.
func (r *Record) SameFailureCount() int {
	if r.DBSameFailureCount == nil {
		return 0
	}
	return *r.DBSameFailureCount
}
