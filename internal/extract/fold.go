// Package extract provides the pure text-selection functions rackbrain
// applies to ticket text, command output and TestView logs.
package extract

import (
	"strings"
	"unicode/utf8"
)

// SplitLines splits text into lines on \n, \r\n and \r. A trailing line
// break does not produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// indexFold returns the byte span of the first case-insensitive occurrence
// of sub in s, or -1 when absent.
func indexFold(s, sub string) (start, end int) {
	if sub == "" {
		return 0, 0
	}
	n := utf8.RuneCountInString(sub)
	for i := range s {
		j, k := i, 0
		for k < n && j < len(s) {
			_, w := utf8.DecodeRuneInString(s[j:])
			j += w
			k++
		}
		if k < n {
			return -1, -1
		}
		if strings.EqualFold(s[i:j], sub) {
			return i, j
		}
	}
	return -1, -1
}

// ContainsFold reports whether sub occurs in s ignoring case.
func ContainsFold(s, sub string) bool {
	i, _ := indexFold(s, sub)
	return i >= 0
}
