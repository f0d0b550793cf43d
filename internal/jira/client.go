// Package jira is a small Jira REST v2 client authenticated with a
// personal access token. It covers what rackbrain needs: reading issues
// and comments, commenting, transitions, assignment, search and issue
// links.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/breaker"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/ctxutil"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

const maxErrorBody = 512

// HTTPClient is the subset of *http.Client the adapter uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is an unexpected Jira response status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusUnauthorized {
		return fmt.Sprintf("%s: %s: check PAT/permissions", rberrors.ErrJiraUnauthorized, e.Op)
	}
	return fmt.Sprintf("%s: %s: status %d: %s", rberrors.ErrJiraAPI, e.Op, e.Code, e.Body)
}

// Unwrap maps 401 to ErrJiraUnauthorized and everything else to ErrJiraAPI.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return rberrors.ErrJiraUnauthorized
	}
	return rberrors.ErrJiraAPI
}

// Options configures a Client.
type Options struct {
	BaseURL string
	PAT     string
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPClient

	Logger zerolog.Logger
}

// Client is a Jira REST v2 client. It is safe for concurrent use.
type Client struct {
	base    string
	pat     string
	http    HTTPClient
	breaker *breaker.Breaker
	logger  zerolog.Logger
}

// New returns a Client. A missing base URL or PAT is a configuration error.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base_url is required", rberrors.ErrConfigInvalidJira)
	}
	pat := strings.TrimSpace(opts.PAT)
	if pat == "" {
		return nil, fmt.Errorf("%w: jira PAT not configured (set jira.pat or RACKBRAIN_JIRA_PAT)", rberrors.ErrMissingCredential)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = constants.DefaultJiraTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base: base,
		pat:  pat,
		http: httpClient,
		breaker: breaker.New(breaker.Settings{
			Name:        "jira",
			IsPermanent: isClientError,
			Logger:      opts.Logger,
		}),
		logger: opts.Logger,
	}, nil
}

// isClientError reports 4xx responses, which say nothing about Jira's health.
func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code < http.StatusInternalServerError
}

// GetIssue fetches one issue. A nil fields list returns every field.
func (c *Client) GetIssue(ctx context.Context, key string, fields []string) (*Issue, error) {
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	var issue Issue
	op := "get_issue(" + key + ")"
	if err := c.call(ctx, op, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key), q, nil, &issue, http.StatusOK); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetComments returns one page of an issue's comments.
func (c *Client) GetComments(ctx context.Context, key string, startAt, maxResults int) (*CommentPage, error) {
	q := url.Values{}
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))
	var page CommentPage
	op := "get_issue_comments(" + key + ")"
	if err := c.call(ctx, op, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", q, nil, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

// AddComment posts body as a new comment.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	payload := map[string]string{"body": body}
	return c.call(ctx, "add_comment("+key+")", http.MethodPost,
		"/rest/api/2/issue/"+url.PathEscape(key)+"/comment", nil, payload, nil,
		http.StatusOK, http.StatusCreated)
}

// Transitions lists the transitions currently available on an issue.
func (c *Client) Transitions(ctx context.Context, key string) ([]Transition, error) {
	var out struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.call(ctx, "get_transitions("+key+")", http.MethodGet,
		"/rest/api/2/issue/"+url.PathEscape(key)+"/transitions", nil, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// DoTransition applies transition id. A non-empty comment is added in the
// same request.
func (c *Client) DoTransition(ctx context.Context, key, id, comment string) error {
	payload := map[string]any{"transition": map[string]string{"id": id}}
	if comment != "" {
		payload["update"] = map[string]any{
			"comment": []any{map[string]any{"add": map[string]string{"body": comment}}},
		}
	}
	return c.call(ctx, "do_transition("+key+", "+id+")", http.MethodPost,
		"/rest/api/2/issue/"+url.PathEscape(key)+"/transitions", nil, payload, nil,
		http.StatusOK, http.StatusNoContent)
}

// TransitionByName applies the transition whose name equals name
// (case-insensitive). It returns the transition's display name, or
// ErrTransitionNotFound.
func (c *Client) TransitionByName(ctx context.Context, key, name, comment string) (string, error) {
	transitions, err := c.Transitions(ctx, key)
	if err != nil {
		return "", err
	}
	t := FindTransition(transitions, name)
	if t == nil {
		return "", fmt.Errorf("%w: %q on %s", rberrors.ErrTransitionNotFound, name, key)
	}
	if err := c.DoTransition(ctx, key, t.ID, comment); err != nil {
		return "", err
	}
	return t.Name, nil
}

// Assign sets the assignee. Jira Server accepts a user name; Cloud needs
// an accountId, so a 400 or 404 on the name attempt retries with accountId.
func (c *Client) Assign(ctx context.Context, key, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("%w: assignee for %s", rberrors.ErrEmptyValue, key)
	}
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/assignee"
	op := "assign_issue(" + key + ", " + user + ")"

	err := c.call(ctx, op, http.MethodPut, path, nil, map[string]string{"name": user}, nil,
		http.StatusOK, http.StatusNoContent)
	var se *StatusError
	if err == nil || !errors.As(err, &se) || (se.Code != http.StatusBadRequest && se.Code != http.StatusNotFound) {
		return err
	}

	c.logger.Debug().Str("issue_key", key).Int("status", se.Code).Msg("assign by name rejected, retrying with accountId")
	return c.call(ctx, op, http.MethodPut, path, nil, map[string]string{"accountId": user}, nil,
		http.StatusOK, http.StatusNoContent)
}

// Search runs jql and returns up to maxResults issues.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int) ([]Issue, error) {
	payload := map[string]any{"jql": jql, "maxResults": maxResults}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	var out struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.call(ctx, "search_issues", http.MethodPost, "/rest/api/2/search", nil, payload, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

// CreateIssueLink links inward to outward with the named link type. An
// already existing link is not an error.
func (c *Client) CreateIssueLink(ctx context.Context, linkType, inward, outward string) error {
	payload := map[string]any{
		"type":         map[string]string{"name": linkType},
		"inwardIssue":  map[string]string{"key": inward},
		"outwardIssue": map[string]string{"key": outward},
	}
	err := c.call(ctx, "create_issue_link("+inward+", "+outward+", "+linkType+")", http.MethodPost,
		"/rest/api/2/issueLink", nil, payload, nil,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest && linkExists(se.Body) {
		c.logger.Debug().Str("inward", inward).Str("outward", outward).Msg("issue link already exists")
		return nil
	}
	return err
}

func linkExists(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "issue link") && (strings.Contains(b, "already") || strings.Contains(b, "exists"))
}

// call performs one request and decodes a JSON response into out (when
// non-nil). Any status not in ok becomes a *StatusError.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, payload, out any, ok ...int) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return rberrors.Wrapf(err, "failed to encode %s request", op)
		}
	}

	data, err := breaker.Execute(c.breaker, func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, rberrors.Wrapf(err, "failed to build %s request", op)
		}
		req.Header.Set("Authorization", "Bearer "+c.pat)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, rberrors.Wrapf(err, "jira %s failed", op)
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, rberrors.Wrapf(err, "failed to read %s response", op)
		}
		if !statusIn(resp.StatusCode, ok) {
			return raw, &StatusError{Op: op, Code: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
		}
		return raw, nil
	})
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return rberrors.Wrapf(err, "failed to decode %s response", op)
	}
	return nil
}

func statusIn(code int, ok []int) bool {
	for _, c := range ok {
		if code == c {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
