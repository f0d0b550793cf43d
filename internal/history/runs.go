package history

import (
	"strings"
	"time"
)

// Run is one ServerStatus row of a server.
type Run struct {
	SN             string
	SLTID          int64
	OK             *int64
	Started        time.Time
	Finished       time.Time
	FailedTestset  string
	FailedTestcase string
	FailureMessage string
	Guti           string
}

// Failed reports whether the run finished with ok = 0.
func (r Run) Failed() bool {
	return r.OK != nil && *r.OK == 0
}

// FailedRun is the newest failing run that matched a lookup, plus what
// the run history says about it.
type FailedRun struct {
	Run

	// SameFailureCount is the number of consecutive newest runs failing
	// on the same testset and testcase.
	SameFailureCount int

	// Testcases is FailedTestcase split on commas.
	Testcases []string
}

// ParseTestcases splits a comma-separated testcase list, dropping blanks.
func ParseTestcases(s string) []string {
	var out []string
	for _, tc := range strings.Split(s, ",") {
		if tc = strings.TrimSpace(tc); tc != "" {
			out = append(out, tc)
		}
	}
	return out
}

// SameFailureCount counts how many consecutive runs, from the newest,
// failed on the same testset and testcase. It returns 0 when the newest
// run passed or lacks failure details.
func SameFailureCount(runs []Run) int {
	if len(runs) == 0 {
		return 0
	}
	first := runs[0]
	if !first.Failed() || first.FailedTestset == "" || first.FailedTestcase == "" {
		return 0
	}

	count := 1
	for _, r := range runs[1:] {
		if !r.Failed() || r.FailedTestset != first.FailedTestset || r.FailedTestcase != first.FailedTestcase {
			break
		}
		count++
	}
	return count
}

// SelectLatestFailed returns the newest failing run in runs (newest first)
// whose testset equals testset and whose failed testcase contains
// testcaseContains. Both filters are case-insensitive and ignored when
// empty. It returns nil when nothing matches.
func SelectLatestFailed(runs []Run, testcaseContains, testset string) *FailedRun {
	testset = strings.ToLower(strings.TrimSpace(testset))
	tc := strings.ToLower(strings.TrimSpace(testcaseContains))

	for _, r := range runs {
		if !r.Failed() {
			continue
		}
		if testset != "" && strings.ToLower(strings.TrimSpace(r.FailedTestset)) != testset {
			continue
		}
		if tc != "" && !strings.Contains(strings.ToLower(r.FailedTestcase), tc) {
			continue
		}
		return &FailedRun{
			Run:              r,
			SameFailureCount: SameFailureCount(runs),
			Testcases:        ParseTestcases(r.FailedTestcase),
		}
	}
	return nil
}

// ChooseTestcase picks the testcase whose log should be fetched: the first
// one containing contains (case-sensitive), else the first one.
func ChooseTestcase(testcases []string, contains string) string {
	for _, tc := range testcases {
		if strings.Contains(tc, contains) {
			return tc
		}
	}
	if len(testcases) > 0 {
		return testcases[0]
	}
	return ""
}
