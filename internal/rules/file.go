package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileRule is the YAML structure of one rule in a rule file.
type FileRule struct {
	ID                    string         `yaml:"id"`
	Name                  string         `yaml:"name"`
	Description           string         `yaml:"description"`
	Priority              int            `yaml:"priority"`
	Scope                 map[string]any `yaml:"scope"`
	Patterns              []FilePattern  `yaml:"patterns"`
	Action                FileAction     `yaml:"action"`
	AllowOnSameFailure    bool           `yaml:"allow_on_same_failure"`
	AllowHighSLTAttempts  bool           `yaml:"allow_high_slt_attempts"`
}

// FilePattern is one entry of a rule's pattern list.
type FilePattern struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// FileSelection carries the line-selection keys shared by steps, the
// nested testview block and its cases.
type FileSelection struct {
	LineContains       string `yaml:"line_contains"`
	LineNotContains    string `yaml:"line_not_contains"`
	LineBefore         int    `yaml:"line_before"`
	LineAfter          int    `yaml:"line_after"`
	LineOnly           bool   `yaml:"line_only"`
	LineBetweenStart   string `yaml:"line_between_start_contains"`
	LineBetweenEnd     string `yaml:"line_between_end_contains"`
	LineAfterContains  string `yaml:"line_after_contains"`
	LineAfterChars     int    `yaml:"line_after_chars"`
	BetweenStart       string `yaml:"between_start_contains"`
	BetweenEnd         string `yaml:"between_end_contains"`
	FilterLineContains string `yaml:"filter_line_contains"`
}

// FileStep is one command step.
type FileStep struct {
	ID                 string     `yaml:"id"`
	Cmd                *string    `yaml:"cmd"`
	ExpectStatus       *int       `yaml:"expect_status"`
	ExpectContains     StringList `yaml:"expect_contains"`
	ExpectNotContains  StringList `yaml:"expect_not_contains"`
	OnFailComment      *string    `yaml:"on_expect_fail_comment"`
	OnPassComment      *string    `yaml:"on_expect_pass_comment"`
	StopOnDecision     *bool      `yaml:"stop_on_decision"`
	TimerAfterSeconds  *int       `yaml:"timer_after_seconds"`
	ForEachExtract     string     `yaml:"for_each_extract"`
	IfPreviousContains string     `yaml:"if_previous_contains"`

	FileSelection `yaml:",inline"`

	StartTestviewOnPass       bool    `yaml:"start_testview_on_pass"`
	StartTestviewOnFail       bool    `yaml:"start_testview_on_fail"`
	TestviewOperationOnPass   string  `yaml:"testview_operation_on_pass"`
	TestviewOperationOnFail   string  `yaml:"testview_operation_on_fail"`
	TestviewUseValidateOnPass *bool   `yaml:"testview_use_validate_on_pass"`
	TestviewUseValidateOnFail *bool   `yaml:"testview_use_validate_on_fail"`
}

// FileTextExtract is one named text extract.
type FileTextExtract struct {
	Name              string  `yaml:"name"`
	Source            string  `yaml:"source"`
	BetweenStart      string  `yaml:"between_start_contains"`
	BetweenEnd        string  `yaml:"between_end_contains"`
	LineContains      string  `yaml:"line_contains"`
	LineBetweenStart  string  `yaml:"line_between_start_contains"`
	LineBetweenEnd    string  `yaml:"line_between_end_contains"`
	LineAfterContains string  `yaml:"line_after_contains"`
	LineAfterChars    int     `yaml:"line_after_chars"`
	Take              string  `yaml:"take"`
	Default           *string `yaml:"default"`
}

// FileLinkIssue is the link_issue action block.
type FileLinkIssue struct {
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
}

// FileTestviewWhen is the condition of a TestView case.
type FileTestviewWhen struct {
	Contains *string `yaml:"contains"`
	Regex    *string `yaml:"regex"`
	Type     string  `yaml:"type"`
	Value    string  `yaml:"value"`
	Source   string  `yaml:"source"`
}

// FileTestviewCase is one ordered TestView case.
type FileTestviewCase struct {
	When            FileTestviewWhen `yaml:"when"`
	Select          *FileSelection   `yaml:"select"`
	CommentTemplate string           `yaml:"comment_template"`
}

// FileTestview is the nested action.testview block.
type FileTestview struct {
	Testcase         TestcaseRef        `yaml:"testcase"`
	TestcaseContains string             `yaml:"testcase_contains"`
	Testset          string             `yaml:"testset"`
	Select           FileSelection      `yaml:"select"`
	Cases            []FileTestviewCase `yaml:"cases"`
}

// FileAction is the action block of a rule, including the legacy flat
// failure_message_* and testview_* keys.
type FileAction struct {
	Type               string            `yaml:"type"`
	Close              bool              `yaml:"close"`
	CommentTemplate    string            `yaml:"comment_template"`
	IlomFilterContains StringList        `yaml:"ilom_filter_contains"`
	AssignTo           *string           `yaml:"assign_to"`
	ReassignTo         *string           `yaml:"reassign_to"`
	TransitionTo       string            `yaml:"transition_to"`
	TimerAfterSeconds  *int              `yaml:"timer_after_seconds"`
	CommandSteps       []FileStep        `yaml:"command_steps"`
	TextExtracts       []FileTextExtract `yaml:"text_extracts"`
	LinkIssue          *FileLinkIssue    `yaml:"link_issue"`
	Testview           *FileTestview     `yaml:"testview"`

	StartSLT       bool   `yaml:"start_slt"`
	SLTOperation   string `yaml:"slt_operation"`
	SLTUseValidate *bool  `yaml:"slt_use_validate"`

	FailureMessageLineContains      string `yaml:"failure_message_line_contains"`
	FailureMessageLineBefore        int    `yaml:"failure_message_line_before"`
	FailureMessageLineAfter         int    `yaml:"failure_message_line_after"`
	FailureMessageLineBetweenStart  string `yaml:"failure_message_line_between_start_contains"`
	FailureMessageLineBetweenEnd    string `yaml:"failure_message_line_between_end_contains"`
	FailureMessageLineAfterContains string `yaml:"failure_message_line_after_contains"`
	FailureMessageLineAfterChars    int    `yaml:"failure_message_line_after_chars"`
	FailureMessageBetweenStart      string `yaml:"failure_message_between_start_contains"`
	FailureMessageBetweenEnd        string `yaml:"failure_message_between_end_contains"`

	TestviewTestcaseContains   string `yaml:"testview_testcase_contains"`
	TestviewTestset            string `yaml:"testview_testset"`
	TestviewLineContains       string `yaml:"testview_line_contains"`
	TestviewLineBefore         int    `yaml:"testview_line_before"`
	TestviewLineAfter          int    `yaml:"testview_line_after"`
	TestviewLineBetweenStart   string `yaml:"testview_line_between_start_contains"`
	TestviewLineBetweenEnd     string `yaml:"testview_line_between_end_contains"`
	TestviewLineAfterContains  string `yaml:"testview_line_after_contains"`
	TestviewLineAfterChars     int    `yaml:"testview_line_after_chars"`
	TestviewBetweenStart       string `yaml:"testview_between_start_contains"`
	TestviewBetweenEnd         string `yaml:"testview_between_end_contains"`
	TestviewFilterLineContains string `yaml:"testview_filter_line_contains"`
}

// StringList accepts either a single string or a list of strings.
// A nil StringList means the key was not present.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string item", item.Line)
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// TestcaseRef accepts `testcase: "NAME"` or `testcase: {contains: "NAME"}`.
type TestcaseRef string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TestcaseRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		*t = TestcaseRef(strings.TrimSpace(node.Value))
		return nil
	case yaml.MappingNode:
		var m struct {
			Contains string `yaml:"contains"`
			Value    string `yaml:"value"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		v := m.Contains
		if strings.TrimSpace(v) == "" {
			v = m.Value
		}
		*t = TestcaseRef(strings.TrimSpace(v))
		return nil
	default:
		return fmt.Errorf("line %d: testcase must be a string or a mapping", node.Line)
	}
}
