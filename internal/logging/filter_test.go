package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper functions construct fake secret strings at runtime to avoid
// gitleaks false positives.
func fakeJiraPAT() string      { return "NDU2" + "TESTONLYxxxxxxxxxxxxxxxxxxxx" }
func fakeSessionID() string    { return "abc" + "TESTONLY12345" }
func fakeDBPassword() string   { return "testonly" + "pw123" }
func fakeGenericToken() string { return "TESTONLY" + "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx" }

func TestContainsSensitiveData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"bearer pat", "Authorization: Bearer " + fakeJiraPAT(), true},
		{"cookie header", "Cookie: sessionid=" + fakeSessionID(), true},
		{"session id only", "sent sessionid=" + fakeSessionID() + "; path=/", true},
		{"mysql dsn", "rb:" + fakeDBPassword() + "@tcp(db:3306)/hyvetest", true},
		{"password assignment", "password=" + fakeDBPassword() + "xx", true},
		{"token assignment", "token=" + fakeGenericToken(), true},
		{"plain ticket log", "processing MFGS-1234 sn=1234ABC", false},
		{"remote status line", "[eve_cmd_runner] serial=1234 context=ilom status=0", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, ContainsSensitiveData(tc.input))
		})
	}
}

func TestFilterSensitiveValue(t *testing.T) {
	t.Parallel()

	out := FilterSensitiveValue("GET /issue Authorization: Bearer " + fakeJiraPAT())
	assert.Contains(t, out, RedactedValue)
	assert.NotContains(t, out, fakeJiraPAT())

	dsn := "rb:" + fakeDBPassword() + "@tcp(db:3306)/hyvetest"
	out = FilterSensitiveValue(dsn)
	assert.NotContains(t, out, fakeDBPassword())
	assert.Contains(t, out, "db:3306")

	assert.Equal(t, "nothing to hide", FilterSensitiveValue("nothing to hide"))
}

func TestIsSensitiveFieldName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		field    string
		expected bool
	}{
		{"pat", true},
		{"jira_pat", true},
		{"JIRA_PAT", true},
		{"testview.cookie", true},
		{"db_password", true},
		{"path", false},
		{"pattern", false},
		{"issue_key", false},
		{"rule_id", false},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, IsSensitiveFieldName(tc.field))
		})
	}
}

func TestSafeValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RedactedValue, SafeValue("cookie", "anything"))
	assert.Equal(t, "MFGS-1", SafeValue("issue_key", "MFGS-1"))
}

func TestSensitiveDataHook(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Hook(NewSensitiveDataHook())

	logger.Info().Msg("Bearer " + fakeJiraPAT())
	assert.Contains(t, buf.String(), `"contains_filtered_data":true`)

	buf.Reset()
	logger.Info().Msg("ticket processed")
	assert.NotContains(t, buf.String(), "contains_filtered_data")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFilteringWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fw := NewFilteringWriter(&buf)

	input := []byte("cookie=" + fakeSessionID() + "xxxxx\n")
	n, err := fw.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.NotContains(t, buf.String(), fakeSessionID())

	n, err = NewFilteringWriter(failingWriter{}).Write([]byte("x"))
	require.Error(t, err)
	assert.Zero(t, n)
}
