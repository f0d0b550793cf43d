package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// Custom fields rackbrain reads.
const (
	FieldCustomer = "customfield_15119"
	FieldLocation = "customfield_15143"
)

// IssueFields is the field list requested when processing a ticket.
var IssueFields = []string{
	"summary", "description", "status", "assignee", "reporter", "updated",
	"comment", "attachment", FieldCustomer, FieldLocation,
}

// User is a Jira user reference.
type User struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// Identity is the value used to assign to or compare against this user:
// the first of name, accountId, email and display name that is set.
func (u *User) Identity() string {
	if u == nil {
		return ""
	}
	return firstNonEmpty(u.Name, u.AccountID, u.EmailAddress, u.DisplayName)
}

func (u *User) reporterIdentity() string {
	if u == nil {
		return ""
	}
	return firstNonEmpty(u.Name, u.Key, u.AccountID, u.EmailAddress, u.DisplayName)
}

// Comment is a Jira comment.
type Comment struct {
	ID      string `json:"id"`
	Author  *User  `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

// CommentPage is a page of comments, as embedded in an issue or returned
// by the comment endpoint.
type CommentPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// HasMore reports whether comments exist beyond this page.
func (p *CommentPage) HasMore() bool {
	return p != nil && p.Total > p.StartAt+p.MaxResults
}

// Contains reports whether a comment with id is on the page.
func (p *CommentPage) Contains(id string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Comments {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Status is an issue status or a transition target.
type Status struct {
	Name string `json:"name"`
}

// Fields holds the issue fields rackbrain reads.
type Fields struct {
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Status      *Status         `json:"status"`
	Assignee    *User           `json:"assignee"`
	Reporter    *User           `json:"reporter"`
	Updated     string          `json:"updated"`
	Comment     *CommentPage    `json:"comment"`
	Customer    json.RawMessage `json:"customfield_15119"`
	Location    json.RawMessage `json:"customfield_15143"`
}

// Issue is a Jira issue.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// Transition is an available workflow transition.
type Transition struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	To   *Status `json:"to"`
}

// FindTransition returns the transition named name (case-insensitive,
// trimmed), or nil.
func FindTransition(transitions []Transition, name string) *Transition {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil
	}
	for i := range transitions {
		if strings.ToLower(strings.TrimSpace(transitions[i].Name)) == want && transitions[i].ID != "" {
			return &transitions[i]
		}
	}
	return nil
}

// OptionValue reads a select-list custom field: an object's "value", a
// plain string, or the raw JSON of anything else.
func OptionValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var opt struct {
		Value *string `json:"value"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &opt); err == nil && opt.Value != nil {
			return *opt.Value
		}
		return string(raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ToTicket converts the issue into the domain ticket.
func (i *Issue) ToTicket() domain.Ticket {
	f := &i.Fields
	t := domain.Ticket{
		Key:         i.Key,
		Summary:     strings.TrimSpace(f.Summary),
		Description: f.Description,
		Assignee:    f.Assignee.Identity(),
		Reporter:    f.Reporter.reporterIdentity(),
		Updated:     f.Updated,
		Customer:    OptionValue(f.Customer),
		Location:    OptionValue(f.Location),
	}
	if f.Status != nil {
		t.Status = strings.TrimSpace(f.Status.Name)
	}
	if f.Comment != nil {
		t.Comments = make([]domain.Comment, 0, len(f.Comment.Comments))
		for _, c := range f.Comment.Comments {
			t.Comments = append(t.Comments, toDomainComment(c))
		}
	}
	return t
}

func toDomainComment(c Comment) domain.Comment {
	out := domain.Comment{ID: c.ID, Body: c.Body, Created: c.Created, Updated: c.Updated}
	if c.Author != nil {
		out.Author = c.Author.Identity()
		out.AuthorDisplayName = c.Author.DisplayName
		out.AuthorEmail = c.Author.EmailAddress
	}
	return out
}

// Link type names on the Jira side.
const (
	LinkBlocks  = "Blocks"
	LinkRelates = "Relates"
)

// ResolveLink maps a rule's human link type onto a Jira link type name
// and direction. "is blocked by" makes current the inward issue of a
// Blocks link; "relates to" is symmetric.
func ResolveLink(linkType, current, target string) (name, inward, outward string, err error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(linkType)), " ")
	switch normalized {
	case "is blocked by", "blocked by":
		return LinkBlocks, current, target, nil
	case "relates to", "relates":
		return LinkRelates, current, target, nil
	default:
		return "", "", "", fmt.Errorf("%w: %q (supported: 'is blocked by', 'relates to')",
			rberrors.ErrUnsupportedLinkType, linkType)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
