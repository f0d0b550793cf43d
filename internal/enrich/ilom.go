package enrich

import (
	"regexp"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
)

var (
	weekdayRowRe  = regexp.MustCompile(`^(Mon|Tue|Wed|Thu|Fri|Sat|Sun)\s`)
	columnSplitRe = regexp.MustCompile(`\s{2,}`)
)

// ParseOpenProblems parses the output of "show System/Open_Problems":
//
//	Open Problems (1)
//	Date/Time                 Subsystems          Component
//	------------------------  ------------------  ------------
//	Fri Nov 21 23:28:32 2025  Power               PS1 (Power Supply 1)
//	        A loss of AC input power to a power supply has been detected.
//
// Rows start with a weekday; the component is the last column. Indented
// lines that follow a row are its description.
func ParseOpenProblems(output string) []domain.IlomProblem {
	lines := extract.SplitLines(output)

	header := -1
	for i, line := range lines {
		if strings.Contains(line, "Date/Time") && strings.Contains(line, "Component") {
			header = i
			break
		}
	}
	if header < 0 {
		return nil
	}

	i := header + 1
	for ; i < len(lines); i++ {
		if isSeparator(lines[i]) {
			i++
			break
		}
	}

	var problems []domain.IlomProblem
	var current *domain.IlomProblem
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if weekdayRowRe.MatchString(line) {
			if current != nil {
				problems = append(problems, *current)
			}
			component := strings.TrimSpace(line)
			if parts := columnSplitRe.Split(component, -1); len(parts) >= 3 {
				component = strings.TrimSpace(parts[len(parts)-1])
			}
			current = &domain.IlomProblem{Component: component}
			continue
		}

		if current == nil {
			continue
		}
		text := strings.TrimLeft(line, " \t")
		if current.Description == "" {
			current.Description = text
		} else {
			current.Description += "\n" + text
		}
	}
	if current != nil {
		problems = append(problems, *current)
	}
	return problems
}

func isSeparator(line string) bool {
	s := strings.ReplaceAll(line, " ", "")
	return s != "" && strings.Trim(s, "-") == ""
}
