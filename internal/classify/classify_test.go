package classify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/domain"
)

func sampleRecord() *domain.Record {
	count := 0
	return &domain.Record{
		Ticket:               domain.Ticket{Key: "MFGS-1"},
		SN:                   "1234567890AB",
		Arch:                 "EVE",
		Model:                "X9-2L40S",
		FailedTestset:        "AC_OFF_SP",
		FailureMessage:       "io.pcie.ce detected on slot 3",
		DBFailedTestcaseList: []string{"4_CHECK_ILOM_FAULT", "5_PROGRAM_SYSTEM_RECORD"},
		DBSameFailureCount:   &count,
		CombinedText:         "Failed Testcase: 4_CHECK_ILOM_FAULT\nFault detected on /SYS/MB",
	}
}

func TestScopeMatches(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()

	tests := []struct {
		name  string
		scope map[string]any
		want  bool
	}{
		{"empty scope", map[string]any{}, true},
		{"nil scope", nil, true},
		{"scalar equality ignores case and space", map[string]any{"arch": " eve "}, true},
		{"scalar mismatch", map[string]any{"arch": "HOPPER"}, false},
		{"one of", map[string]any{"failed_testset": []any{"AC_ON_SP", "ac_off_sp"}}, true},
		{"one of miss", map[string]any{"failed_testset": []any{"AC_ON_SP"}}, false},
		{"contains", map[string]any{"model": map[string]any{"contains": "l40s"}}, true},
		{"contains miss", map[string]any{"model": map[string]any{"contains": "H100"}}, false},
		{"not contains", map[string]any{"model": map[string]any{"not_contains": "H100"}}, true},
		{"not contains hit", map[string]any{"model": map[string]any{"not_contains": "X9"}}, false},
		{"regex", map[string]any{"failure_message": map[string]any{"regex": "IO\\.PCIE.*CE"}}, true},
		{"regex miss", map[string]any{"failure_message": map[string]any{"regex": "^slot"}}, false},
		{"invalid regex", map[string]any{"failure_message": map[string]any{"regex": "("}}, false},
		{"unknown map keys impose nothing", map[string]any{"model": map[string]any{"startswith": "H100"}}, true},
		{"unknown map keys beside contains", map[string]any{"model": map[string]any{"startswith": "H100", "contains": "H100"}}, false},
		{"unknown field ignored", map[string]any{"test_phase": "SLT"}, true},
		{"null field fails", map[string]any{"customer_ipn": "7654321"}, false},
		{"null field fails not_contains", map[string]any{"customer_ipn": map[string]any{"not_contains": "x"}}, false},
		{"int field", map[string]any{"db_same_failure_count": 0}, true},
		{"list field scalar", map[string]any{"db_failed_testcase_list": "5_program_system_record"}, true},
		{"list field contains any", map[string]any{"db_failed_testcase_list": map[string]any{"contains": "ilom"}}, true},
		{"list field not_contains none", map[string]any{"db_failed_testcase_list": map[string]any{"not_contains": "ILOM"}}, false},
		{"list field one of", map[string]any{"db_failed_testcase_list": []any{"nope", "4_check_ilom_fault"}}, true},
		{"empty timer list fails equality", map[string]any{"timer_expired_for": "rule_a"}, false},
		{"and across fields", map[string]any{"arch": "EVE", "model": map[string]any{"contains": "H100"}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ScopeMatches(rec, tc.scope))
		})
	}
}

func TestScopeMatches_EmptyList(t *testing.T) {
	t.Parallel()

	rec := &domain.Record{Arch: "EVE"}

	tests := []struct {
		name  string
		scope map[string]any
		want  bool
	}{
		{"not_contains holds", map[string]any{"db_failed_testcase_list": map[string]any{"not_contains": "PCIE"}}, true},
		{"contains fails", map[string]any{"db_failed_testcase_list": map[string]any{"contains": "PCIE"}}, false},
		{"regex fails", map[string]any{"db_failed_testcase_list": map[string]any{"regex": ".*"}}, false},
		{"scalar equality fails", map[string]any{"db_failed_testcase_list": "4_CHECK_ILOM_FAULT"}, false},
		{"one of fails", map[string]any{"db_failed_testcase_list": []any{"4_CHECK_ILOM_FAULT"}}, false},
		{"ilom components not_contains", map[string]any{"ilom_components": map[string]any{"not_contains": "PSU"}}, true},
		{"combined with scalar field", map[string]any{"arch": "eve", "db_failed_testcase_list": map[string]any{"not_contains": "PCIE"}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ScopeMatches(rec, tc.scope))
		})
	}
}

func TestFold_ConcurrentUse(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.True(t, containsFold("Riser PCIe Slot 3", "pcie SLOT"))
			}
		}()
	}
	wg.Wait()
}

func TestScopeMatches_TimerExpiredFor(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.TimerExpiredFor = []string{"wait_rule"}
	assert.True(t, ScopeMatches(rec, map[string]any{"timer_expired_for": "wait_rule"}))
	assert.False(t, ScopeMatches(rec, map[string]any{"timer_expired_for": map[string]any{"not_contains": "wait"}}))
}

func TestPatternMatches(t *testing.T) {
	t.Parallel()

	text := "Failure Message: PCIe Correctable Error"

	assert.True(t, PatternMatches(domain.Pattern{Type: "contains", Value: "pcie correctable"}, text))
	assert.False(t, PatternMatches(domain.Pattern{Type: "contains", Value: "uncorrectable"}, text))
	assert.True(t, PatternMatches(domain.Pattern{Type: "not_contains", Value: "uncorrectable"}, text))
	assert.False(t, PatternMatches(domain.Pattern{Type: "not_contains", Value: "PCIE"}, text))
	assert.True(t, PatternMatches(domain.Pattern{Type: "regex", Value: `pcie\s+\w+`}, text))
	assert.False(t, PatternMatches(domain.Pattern{Type: "regex", Value: `[`}, text))
	assert.False(t, PatternMatches(domain.Pattern{Type: "glob", Value: "*"}, text))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()

	t.Run("no rules", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, Classify(rec, nil, 0.75))
	})

	t.Run("skips rules without patterns", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{{ID: "empty", Priority: 100}}
		assert.Nil(t, Classify(rec, rules, 0))
	})

	t.Run("confidence threshold", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{{
			ID: "half",
			Patterns: []domain.Pattern{
				{Type: "contains", Value: "ILOM_FAULT"},
				{Type: "contains", Value: "not present"},
			},
		}}
		assert.Nil(t, Classify(rec, rules, 0.75))

		m := Classify(rec, rules, 0.5)
		require.NotNil(t, m)
		assert.InDelta(t, 0.5, m.Confidence, 1e-9)
		assert.Len(t, m.MatchedPatterns, 1)
	})

	t.Run("priority beats confidence", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{
			{ID: "full", Patterns: []domain.Pattern{{Type: "contains", Value: "fault"}}},
			{ID: "prio", Priority: 10, Patterns: []domain.Pattern{
				{Type: "contains", Value: "fault"},
				{Type: "contains", Value: "absent"},
			}},
		}
		m := Classify(rec, rules, 0.5)
		require.NotNil(t, m)
		assert.Equal(t, "prio", m.Rule.ID)
	})

	t.Run("equal priority higher confidence wins", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{
			{ID: "half", Patterns: []domain.Pattern{
				{Type: "contains", Value: "fault"},
				{Type: "contains", Value: "absent"},
			}},
			{ID: "full", Patterns: []domain.Pattern{{Type: "contains", Value: "fault"}}},
		}
		m := Classify(rec, rules, 0.5)
		require.NotNil(t, m)
		assert.Equal(t, "full", m.Rule.ID)
	})

	t.Run("first declared wins ties", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{
			{ID: "first", Patterns: []domain.Pattern{{Type: "contains", Value: "fault"}}},
			{ID: "second", Patterns: []domain.Pattern{{Type: "regex", Value: "ilom"}}},
		}
		m := Classify(rec, rules, 0.75)
		require.NotNil(t, m)
		assert.Equal(t, "first", m.Rule.ID)
	})

	t.Run("scope filters before patterns", func(t *testing.T) {
		t.Parallel()
		rules := []domain.Rule{
			{ID: "hopper", Priority: 5, Scope: map[string]any{"arch": "HOPPER"},
				Patterns: []domain.Pattern{{Type: "contains", Value: "fault"}}},
			{ID: "eve", Scope: map[string]any{"arch": "EVE"},
				Patterns: []domain.Pattern{{Type: "contains", Value: "fault"}}},
		}
		m := Classify(rec, rules, 0.75)
		require.NotNil(t, m)
		assert.Equal(t, "eve", m.Rule.ID)
	})
}

func TestRuleHelpers(t *testing.T) {
	t.Parallel()

	rules := []domain.Rule{{ID: "a"}, {ID: "b", AllowOnSameFailure: true}, {ID: "c"}}

	filtered := FilterRules(rules, map[string]struct{}{"b": {}})
	require.Len(t, filtered, 2)
	assert.Equal(t, "c", filtered[1].ID)
	assert.Len(t, FilterRules(rules, nil), 3)

	same := SelectRules(rules, func(r *domain.Rule) bool { return r.AllowOnSameFailure })
	require.Len(t, same, 1)
	assert.Equal(t, "b", same[0].ID)

	byID := RulesByID(rules)
	assert.Equal(t, "c", byID["c"].ID)
	assert.Nil(t, byID["z"])
}
