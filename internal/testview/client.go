// Package testview talks to the TestView web service: it downloads SLT
// testcase logs, starts SLT runs, and picks comment templates from a
// rule's ordered TestView cases.
package testview

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/breaker"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// DefaultBaseURL is the TestView instance used when none is configured.
const DefaultBaseURL = "https://testview-eve-fmt.hyvesolutions.org"

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	maxErrorBody   = 512
)

// HTTPClient is the subset of *http.Client the adapter uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx TestView response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", rberrors.ErrTestviewAPI, e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrTestviewAPI.
func (e *StatusError) Unwrap() error { return rberrors.ErrTestviewAPI }

// Options configures a Client.
type Options struct {
	BaseURL string

	// Cookie is sent verbatim as the Cookie header.
	Cookie string

	Timeout time.Duration

	// VerifyTLS enables certificate verification. The internal TestView
	// deployment uses a private CA.
	VerifyTLS bool

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPClient

	Logger zerolog.Logger
}

// Client is a TestView HTTP client. It is safe for concurrent use.
type Client struct {
	base    string
	cookie  string
	http    HTTPClient
	breaker *breaker.Breaker
	logger  zerolog.Logger
}

// New returns a Client.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.VerifyTLS}, //nolint:gosec // internal service with a private CA
			},
		}
	}

	return &Client{
		base:   base,
		cookie: strings.TrimSpace(opts.Cookie),
		http:   httpClient,
		breaker: breaker.New(breaker.Settings{
			Name:   "testview",
			Logger: opts.Logger,
		}),
		logger: opts.Logger,
	}
}

func isStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// LogURL builds the download URL of one testcase log.
func (c *Client) LogURL(sn string, sltID int64, testset, testcase string) string {
	return fmt.Sprintf("%s/api/v1/download/%s/%d/%s/%s/log.raw?inline=true",
		c.base, url.PathEscape(sn), sltID, url.PathEscape(testset), url.PathEscape(testcase))
}

// FetchLog downloads the raw log of testcase in run sltID.
func (c *Client) FetchLog(ctx context.Context, sn string, sltID int64, testset, testcase string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.LogURL(sn, sltID, testset, testcase), nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &StatusError{Code: status, Body: truncate(body, maxErrorBody)}
	}
	return body, nil
}

// StartResult holds the raw responses of an SLT start.
type StartResult struct {
	// ValidateStatus is nil when validation was skipped.
	ValidateStatus *int
	ValidateText   string
	StartStatus    int
	StartText      string
}

// StartSLT optionally validates the server and then starts operation
// (SLT or PRETEST) on it. Non-2xx responses are reported in the result,
// not as errors; the caller surfaces them in the ticket comment.
func (c *Client) StartSLT(ctx context.Context, sn, operation string, validate bool) (StartResult, error) {
	var res StartResult
	if operation == "" {
		operation = "SLT"
	}
	base := c.base + "/api/v1/server_level_tests/start"
	query := "?operation=" + url.QueryEscape(operation)

	if validate {
		status, body, err := c.do(ctx, http.MethodPost, base+"/validate_server/"+url.PathEscape(sn)+query, nil)
		if err != nil && !isStatusError(err) {
			return res, err
		}
		res.ValidateStatus = &status
		res.ValidateText = body
	}

	// start_test rejects requests without a JSON body.
	status, body, err := c.do(ctx, http.MethodPost, base+"/start_test/"+url.PathEscape(sn)+query, []byte("{}"))
	if err != nil && !isStatusError(err) {
		return res, err
	}
	res.StartStatus = status
	res.StartText = body
	return res, nil
}

type response struct {
	status int
	body   string
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (int, string, error) {
	if c.cookie == "" {
		return 0, "", fmt.Errorf("%w: testview cookie not configured (set RACKBRAIN_TESTVIEW_COOKIE or HYVE_TESTVIEW_COOKIE)", rberrors.ErrMissingCredential)
	}

	resp, err := breaker.Execute(c.breaker, func() (response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return response{}, rberrors.Wrap(err, "failed to build testview request")
		}
		req.Header.Set("Cookie", c.cookie)
		req.Header.Set("User-Agent", userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return response{}, rberrors.Wrap(err, "testview request failed")
		}
		defer func() { _ = httpResp.Body.Close() }()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return response{}, rberrors.Wrap(err, "failed to read testview response")
		}
		out := response{status: httpResp.StatusCode, body: string(data)}
		if out.status >= http.StatusInternalServerError {
			return out, &StatusError{Code: out.status, Body: truncate(out.body, maxErrorBody)}
		}
		return out, nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			c.logger.Debug().Int("status", se.Code).Str("url", target).Msg("testview returned server error")
		}
		return resp.status, resp.body, err
	}
	return resp.status, resp.body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
