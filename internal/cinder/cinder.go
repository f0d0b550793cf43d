// Package cinder builds the verification report posted on refurbished
// cinder tickets: the server's outpost_fru rows from hyvetest and its
// newest Seizo execution.
//
// Import rules:
//   - CAN import: internal/breaker, internal/domain, internal/errors, internal/history, std lib
//   - MUST NOT import: internal/cli, internal/config, internal/processor
package cinder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/breaker"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/history"
)

// RuleID is the rule whose comment carries the report.
const RuleID = "cinder_verification_close"

// Defaults used when Options leaves a field zero.
const (
	DefaultListPath       = "/execution/list"
	DefaultExecPath       = "/execution"
	DefaultTimeout        = 20 * time.Second
	DefaultMaxReportChars = 8000
)

const maxErrorBody = 512

// IsTicket reports whether ticket is a cinder verification ticket: a
// refurb cinder verification summary from the Woody (Outpost) customer in
// Fremont.
func IsTicket(ticket domain.Ticket) bool {
	summary := strings.ToLower(ticket.Summary)
	if !strings.Contains(summary, "cinder verification") || !strings.Contains(summary, "refurb") {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(ticket.Location), "fremont") &&
		strings.Contains(strings.ToLower(ticket.Customer), "woody (outpost)")
}

// HTTPClient is the subset of *http.Client the reporter uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FRUSource reads outpost_fru rows.
type FRUSource interface {
	Enabled() bool
	OutpostFRU(ctx context.Context, sn string) ([]history.FRU, error)
}

// Options configures a Reporter.
type Options struct {
	// BaseURL is the Seizo API root. An empty BaseURL makes every report
	// fail.
	BaseURL string

	ListPath       string
	ExecPath       string
	Timeout        time.Duration
	MaxReportChars int

	FRU FRUSource

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPClient

	Logger zerolog.Logger
}

// Reporter builds cinder verification reports. It is safe for concurrent
// use.
type Reporter struct {
	base     string
	listPath string
	execPath string
	maxChars int
	fru      FRUSource
	http     HTTPClient
	breaker  *breaker.Breaker
	logger   zerolog.Logger
}

// StatusError is a non-200 Seizo response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d from %s: %s", rberrors.ErrCinderReport, e.Code, e.URL, e.Body)
}

// Unwrap lets errors.Is match ErrCinderReport.
func (e *StatusError) Unwrap() error { return rberrors.ErrCinderReport }

// New returns a Reporter.
func New(opts Options) *Reporter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxChars := opts.MaxReportChars
	if maxChars <= 0 {
		maxChars = DefaultMaxReportChars
	}

	return &Reporter{
		base:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		listPath: trimPath(opts.ListPath, DefaultListPath),
		execPath: trimPath(opts.ExecPath, DefaultExecPath),
		maxChars: maxChars,
		fru:      opts.FRU,
		http:     httpClient,
		breaker: breaker.New(breaker.Settings{
			Name:        "seizo",
			IsPermanent: isClientError,
			Logger:      opts.Logger,
		}),
		logger: opts.Logger,
	}
}

func trimPath(p, def string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return strings.Trim(def, "/")
	}
	return p
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code < http.StatusInternalServerError
}

// Report builds the report for sn: the outpost_fru table, the pretty
// execution list and the pretty details of its first execution, separated
// by blank lines and cut to the configured length.
func (r *Reporter) Report(ctx context.Context, sn string) (string, error) {
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return "", fmt.Errorf("%w: missing SN", rberrors.ErrCinderReport)
	}
	if r.base == "" {
		return "", fmt.Errorf("%w: seizo base url not configured (set RACKBRAIN_SEIZO_BASE)", rberrors.ErrMissingCredential)
	}
	if r.fru == nil || !r.fru.Enabled() {
		return "", fmt.Errorf("%w: cinder database not configured (set RACKBRAIN_CINDER_DB_PASS or RACKBRAIN_DB_PASS)", rberrors.ErrMissingCredential)
	}

	rows, err := r.fru.OutpostFRU(ctx, sn)
	if err != nil {
		return "", rberrors.Wrapf(err, "cinder report for %s", sn)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: no outpost_fru row found for sn_tag=%s", rberrors.ErrCinderReport, sn)
	}

	listRaw, err := r.getJSON(ctx, r.base+"/"+r.listPath+"/SNX."+url.PathEscape(sn))
	if err != nil {
		return "", err
	}
	execID := firstExecutionID(listRaw)
	if execID == "" {
		return "", fmt.Errorf("%w: no execution_id found", rberrors.ErrCinderReport)
	}
	execRaw, err := r.getJSON(ctx, r.base+"/"+r.execPath+"/"+url.PathEscape(execID))
	if err != nil {
		return "", err
	}

	body := strings.TrimRight(strings.Join([]string{
		FRUTable(rows),
		prettyJSON(listRaw),
		prettyJSON(execRaw),
	}, "\n\n"), " \t\r\n")

	if runes := []rune(body); len(runes) > r.maxChars {
		body = string(runes[:r.maxChars])
	}
	r.logger.Debug().Str("sn", sn).Str("execution_id", execID).Int("length", len(body)).Msg("cinder report built")
	return body, nil
}

// getJSON fetches target and returns the body once it parsed as JSON.
func (r *Reporter) getJSON(ctx context.Context, target string) ([]byte, error) {
	return breaker.Execute(r.breaker, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, rberrors.Wrap(err, "failed to build seizo request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := r.http.Do(req)
		if err != nil {
			return nil, rberrors.Wrap(err, "seizo request failed")
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, rberrors.Wrap(err, "failed to read seizo response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: resp.StatusCode, URL: target, Body: truncate(string(data), maxErrorBody)}
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: non-JSON response from %s: %s", rberrors.ErrCinderReport, target, truncate(string(data), maxErrorBody))
		}
		return data, nil
	})
}

// firstExecutionID returns executions_list[0].execution_id as text, or ""
// when the list is missing, empty or malformed.
func firstExecutionID(raw []byte) string {
	var list struct {
		Executions []struct {
			ExecutionID any `json:"execution_id"`
		} `json:"executions_list"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&list); err != nil || len(list.Executions) == 0 {
		return ""
	}
	switch id := list.Executions[0].ExecutionID.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// prettyJSON indents raw with two spaces, keeping the server's key order.
func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
