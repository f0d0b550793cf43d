package domain

// Pattern types understood by the pattern matcher.
const (
	PatternContains    = "contains"
	PatternNotContains = "not_contains"
	PatternRegex       = "regex"
)

// Pattern is a single text pattern inside a rule.
type Pattern struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Rule is a fully parsed classification rule. Rules are immutable after load.
type Rule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Priority    int            `json:"priority"`
	Scope       map[string]any `json:"scope,omitempty"`
	Patterns    []Pattern      `json:"patterns"`
	Action      Action         `json:"action"`

	// AllowOnSameFailure lets the rule run when the same failure repeated.
	AllowOnSameFailure bool `json:"allow_on_same_failure"`

	// AllowHighAttemptCount lets the rule run when the SLT attempt count
	// exceeds the configured maximum.
	AllowHighAttemptCount bool `json:"allow_high_slt_attempts"`
}

// Selection holds the line-selection parameters shared by command steps,
// failure-message selection and TestView snippets.
type Selection struct {
	LineContains       string `json:"line_contains,omitempty"`
	LineNotContains    string `json:"line_not_contains,omitempty"`
	LineBefore         int    `json:"line_before,omitempty"`
	LineAfter          int    `json:"line_after,omitempty"`
	LineOnly           bool   `json:"line_only,omitempty"`
	LineBetweenStart   string `json:"line_between_start_contains,omitempty"`
	LineBetweenEnd     string `json:"line_between_end_contains,omitempty"`
	LineAfterContains  string `json:"line_after_contains,omitempty"`
	LineAfterChars     int    `json:"line_after_chars,omitempty"`
	BetweenStart       string `json:"between_start_contains,omitempty"`
	BetweenEnd         string `json:"between_end_contains,omitempty"`
	FilterLineContains string `json:"filter_line_contains,omitempty"`
}

// HasInline reports whether inline (same-line) extraction is configured.
func (s Selection) HasInline() bool {
	return (s.LineBetweenStart != "" && s.LineBetweenEnd != "") || s.LineAfterContains != ""
}

// HasSelector reports whether any selector that can fail to match is set.
func (s Selection) HasSelector() bool {
	return s.LineContains != "" || s.LineBetweenStart != "" || s.LineBetweenEnd != "" ||
		s.LineAfterContains != "" || s.BetweenStart != "" || s.BetweenEnd != ""
}

// TextExtract names a value pulled out of record text for use in
// command placeholders and comment templates.
type TextExtract struct {
	Name              string `json:"name"`
	Source            string `json:"source"`
	BetweenStart      string `json:"between_start_contains,omitempty"`
	BetweenEnd        string `json:"between_end_contains,omitempty"`
	LineContains      string `json:"line_contains,omitempty"`
	LineBetweenStart  string `json:"line_between_start_contains,omitempty"`
	LineBetweenEnd    string `json:"line_between_end_contains,omitempty"`
	LineAfterContains string `json:"line_after_contains,omitempty"`
	LineAfterChars    int    `json:"line_after_chars,omitempty"`
	Take              string `json:"take,omitempty"`
	Default           string `json:"default,omitempty"`
}

// TestviewWhen is the match condition of a TestView case.
type TestviewWhen struct {
	Contains    string `json:"contains,omitempty"`
	HasContains bool   `json:"-"`
	Regex       string `json:"regex,omitempty"`
	HasRegex    bool   `json:"-"`
	Type        string `json:"type,omitempty"`
	Value       string `json:"value,omitempty"`
	Source      string `json:"source,omitempty"`
}

// TestviewCase is one ordered entry of a TestView case list.
type TestviewCase struct {
	When            TestviewWhen `json:"when"`
	Select          *Selection   `json:"select,omitempty"`
	CommentTemplate string       `json:"comment_template"`
}

// TestviewRequest asks for a TestView log to be fetched, sliced and
// optionally matched against ordered cases.
type TestviewRequest struct {
	TestcaseContains string         `json:"testcase_contains"`
	Testset          string         `json:"testset,omitempty"`
	Select           Selection      `json:"select"`
	Cases            []TestviewCase `json:"cases,omitempty"`
}

// LinkIssue creates a Jira issue link to another issue.
type LinkIssue struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// CommandStep is one remote command in a rule's ordered step list.
type CommandStep struct {
	ID  string `json:"id"`
	Cmd string `json:"cmd"`

	// Expectations. Nil means "not declared".
	ExpectStatus      *int     `json:"expect_status,omitempty"`
	ExpectContains    []string `json:"expect_contains,omitempty"`
	ExpectNotContains []string `json:"expect_not_contains,omitempty"`

	OnPassComment  *string `json:"on_expect_pass_comment,omitempty"`
	OnFailComment  *string `json:"on_expect_fail_comment,omitempty"`
	StopOnDecision bool    `json:"stop_on_decision"`

	TimerAfterSeconds  *int   `json:"timer_after_seconds,omitempty"`
	ForEachExtract     string `json:"for_each_extract,omitempty"`
	IfPreviousContains string `json:"if_previous_contains,omitempty"`

	Selection Selection `json:"selection"`

	StartTestviewOnPass       bool   `json:"start_testview_on_pass"`
	StartTestviewOnFail       bool   `json:"start_testview_on_fail"`
	TestviewOperationOnPass   string `json:"testview_operation_on_pass"`
	TestviewOperationOnFail   string `json:"testview_operation_on_fail"`
	TestviewUseValidateOnPass bool   `json:"testview_use_validate_on_pass"`
	TestviewUseValidateOnFail bool   `json:"testview_use_validate_on_fail"`
}

// HasExpectations reports whether any expectation is declared.
func (s *CommandStep) HasExpectations() bool {
	return s.ExpectStatus != nil || s.ExpectContains != nil || s.ExpectNotContains != nil
}

// Action is what happens when a rule matches.
type Action struct {
	Type               string   `json:"type"`
	Close              bool     `json:"close"`
	CommentTemplate    string   `json:"comment_template"`
	IlomFilterContains []string `json:"ilom_filter_contains,omitempty"`

	// AssignTo and ReassignTo are nil when undeclared. An empty ReassignTo
	// keeps the current assignee.
	AssignTo     *string `json:"assign_to,omitempty"`
	ReassignTo   *string `json:"reassign_to,omitempty"`
	TransitionTo string  `json:"transition_to,omitempty"`

	TimerAfterSeconds *int `json:"timer_after_seconds,omitempty"`

	CommandSteps   []CommandStep    `json:"command_steps,omitempty"`
	TextExtracts   []TextExtract    `json:"text_extracts,omitempty"`
	FailureMessage Selection        `json:"failure_message"`
	Testview       *TestviewRequest `json:"testview,omitempty"`

	StartSLT       bool   `json:"start_slt"`
	SLTOperation   string `json:"slt_operation"`
	SLTUseValidate bool   `json:"slt_use_validate"`

	LinkIssue *LinkIssue `json:"link_issue,omitempty"`
}

// Match is the result of classifying a record against one rule.
type Match struct {
	Rule            *Rule     `json:"rule"`
	Confidence      float64   `json:"confidence"`
	MatchedPatterns []Pattern `json:"matched_patterns"`
}

// CommandResult is one executed (or synthesized) command step.
type CommandResult struct {
	CmdID         string `json:"cmd_id"`
	Context       string `json:"context"`
	Cmd           string `json:"cmd"`
	Status        int    `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	SelectedLines string `json:"selected_lines,omitempty"`
}
