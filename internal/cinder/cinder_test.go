package cinder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/history"
)

type fakeFRU struct {
	enabled bool
	rows    []history.FRU
	err     error
}

func (f *fakeFRU) Enabled() bool { return f.enabled }

func (f *fakeFRU) OutpostFRU(_ context.Context, _ string) ([]history.FRU, error) {
	return f.rows, f.err
}

var sampleRows = []history.FRU{
	{ID: 12, SN: "SN1", TestPassed: "01", TestFinished: "2024-01-02 03:04:05"},
	{ID: 7, SN: "SN1"},
}

const sampleTable = `+----+--------+-------------+---------------------+
| id | sn_tag | test_passed | test_finished       |
+----+--------+-------------+---------------------+
| 12 | SN1    | 01          | 2024-01-02 03:04:05 |
|  7 | SN1    | NULL        | NULL                |
+----+--------+-------------+---------------------+`

func newSeizo(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func seizoOK(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/execution/list/SNX.SN1":
		_, _ = io.WriteString(w, `{"sn":"SN1","executions_list":[{"execution_id":"ex-9","state":"PASSED"},{"execution_id":"ex-8"}]}`)
	case "/execution/ex-9":
		_, _ = io.WriteString(w, `{"execution_id":"ex-9","result":"PASSED"}`)
	default:
		http.NotFound(w, r)
	}
}

func TestIsTicket(t *testing.T) {
	t.Parallel()

	base := domain.Ticket{
		Summary:  "Cinder Verification - Refurb SN1",
		Location: " Fremont ",
		Customer: "Woody (Outpost) Racks",
	}

	assert.True(t, IsTicket(base))

	noRefurb := base
	noRefurb.Summary = "Cinder Verification SN1"
	assert.False(t, IsTicket(noRefurb))

	otherSite := base
	otherSite.Location = "Austin"
	assert.False(t, IsTicket(otherSite))

	otherCustomer := base
	otherCustomer.Customer = "Acme"
	assert.False(t, IsTicket(otherCustomer))
}

func TestFRUTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sampleTable, FRUTable(sampleRows))
}

func TestReporter_Report(t *testing.T) {
	t.Parallel()

	srv, paths := newSeizo(t, seizoOK)
	r := New(Options{BaseURL: srv.URL + "/", FRU: &fakeFRU{enabled: true, rows: sampleRows}, Logger: zerolog.Nop()})

	report, err := r.Report(context.Background(), " SN1 ")
	require.NoError(t, err)

	want := sampleTable + "\n\n" +
		"{\n  \"sn\": \"SN1\",\n  \"executions_list\": [\n    {\n      \"execution_id\": \"ex-9\",\n      \"state\": \"PASSED\"\n    },\n    {\n      \"execution_id\": \"ex-8\"\n    }\n  ]\n}" +
		"\n\n" +
		"{\n  \"execution_id\": \"ex-9\",\n  \"result\": \"PASSED\"\n}"
	assert.Equal(t, want, report)
	assert.Equal(t, []string{"/execution/list/SNX.SN1", "/execution/ex-9"}, *paths)
}

func TestReporter_ReportNumericExecutionID(t *testing.T) {
	t.Parallel()

	srv, paths := newSeizo(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/list/") {
			_, _ = io.WriteString(w, `{"executions_list":[{"execution_id":4242}]}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	})
	r := New(Options{
		BaseURL:  srv.URL,
		ListPath: "/api/list/",
		ExecPath: "api/exec",
		FRU:      &fakeFRU{enabled: true, rows: sampleRows},
		Logger:   zerolog.Nop(),
	})

	_, err := r.Report(context.Background(), "SN1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/list/SNX.SN1", "/api/exec/4242"}, *paths)
}

func TestReporter_ReportTruncates(t *testing.T) {
	t.Parallel()

	srv, _ := newSeizo(t, seizoOK)
	r := New(Options{BaseURL: srv.URL, MaxReportChars: 20, FRU: &fakeFRU{enabled: true, rows: sampleRows}, Logger: zerolog.Nop()})

	report, err := r.Report(context.Background(), "SN1")
	require.NoError(t, err)
	assert.Equal(t, sampleTable[:20], report)
}

func TestReporter_ReportErrors(t *testing.T) {
	t.Parallel()

	okFRU := &fakeFRU{enabled: true, rows: sampleRows}

	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		base    string
		fru     FRUSource
		sn      string
		wantErr error
		wantMsg string
	}{
		{name: "missing sn", fru: okFRU, sn: " ", wantErr: rberrors.ErrCinderReport, wantMsg: "missing SN"},
		{name: "no base url", base: "-", fru: okFRU, sn: "SN1", wantErr: rberrors.ErrMissingCredential, wantMsg: "RACKBRAIN_SEIZO_BASE"},
		{name: "database disabled", fru: &fakeFRU{}, sn: "SN1", wantErr: rberrors.ErrMissingCredential, wantMsg: "cinder database"},
		{name: "no database source", sn: "SN1", wantErr: rberrors.ErrMissingCredential},
		{name: "no fru rows", fru: &fakeFRU{enabled: true}, sn: "SN1", wantErr: rberrors.ErrCinderReport, wantMsg: "no outpost_fru row found for sn_tag=SN1"},
		{name: "query failure", fru: &fakeFRU{enabled: true, err: errors.New("connection refused")}, sn: "SN1", wantMsg: "connection refused"},
		{
			name: "list not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "no such sn", http.StatusNotFound)
			},
			fru: okFRU, sn: "SN1", wantErr: rberrors.ErrCinderReport, wantMsg: "HTTP 404",
		},
		{
			name: "non json list",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "<html>maintenance</html>")
			},
			fru: okFRU, sn: "SN1", wantErr: rberrors.ErrCinderReport, wantMsg: "non-JSON response",
		},
		{
			name: "empty executions",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"executions_list":[]}`)
			},
			fru: okFRU, sn: "SN1", wantErr: rberrors.ErrCinderReport, wantMsg: "no execution_id found",
		},
		{
			name: "malformed executions",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"executions_list":"none"}`)
			},
			fru: okFRU, sn: "SN1", wantErr: rberrors.ErrCinderReport, wantMsg: "no execution_id found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := tc.handler
			if handler == nil {
				handler = seizoOK
			}
			srv, _ := newSeizo(t, handler)
			base := srv.URL
			if tc.base == "-" {
				base = ""
			}
			r := New(Options{BaseURL: base, FRU: tc.fru, Logger: zerolog.Nop()})

			report, err := r.Report(context.Background(), tc.sn)
			require.Error(t, err)
			assert.Empty(t, report)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestReporter_ClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv, paths := newSeizo(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown", http.StatusNotFound)
	})
	r := New(Options{BaseURL: srv.URL, FRU: &fakeFRU{enabled: true, rows: sampleRows}, Logger: zerolog.Nop()})

	for range 8 {
		_, err := r.Report(context.Background(), "SN1")
		require.ErrorIs(t, err, rberrors.ErrCinderReport)
	}
	assert.Len(t, *paths, 8)
}
