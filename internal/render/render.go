// Package render builds Jira comment bodies from rule templates.
//
// Templates use {name} placeholders resolved against an explicit context
// map (see BuildContext). A template that references an unknown name or
// has unbalanced braces renders a diagnostic fallback comment instead.
package render

import (
	"fmt"
	"strings"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
)

// DefaultSignatureExempt lists rule ids whose comments carry no signature.
var DefaultSignatureExempt = []string{"approval_request_ack", "cinder_verification_close"}

// Renderer renders comment bodies.
type Renderer struct {
	signature string
	exempt    map[string]struct{}
}

// Options configures a Renderer.
type Options struct {
	// Signature is appended to comments. Empty uses DefaultSignature.
	Signature string

	// Exempt lists rule ids that get no signature. Nil uses
	// DefaultSignatureExempt.
	Exempt []string
}

// New returns a Renderer.
func New(opts Options) *Renderer {
	sig := opts.Signature
	if sig == "" {
		sig = constants.DefaultSignature
	}
	exempt := opts.Exempt
	if exempt == nil {
		exempt = DefaultSignatureExempt
	}
	r := &Renderer{signature: sig, exempt: make(map[string]struct{}, len(exempt))}
	for _, id := range exempt {
		r.exempt[id] = struct{}{}
	}
	return r
}

// Render builds the comment body for m. override, when non-empty, replaces
// the rule's comment template.
//
// On a template error the fallback body is returned along with the error,
// so callers can log it and still post a comment.
func (r *Renderer) Render(m *domain.Match, rec *domain.Record, override string) (string, error) {
	tmpl := override
	if tmpl == "" {
		tmpl = m.Rule.Action.CommentTemplate
	}

	body, err := Format(tmpl, BuildContext(m, rec))
	if err != nil {
		body = fallback(err, m.Rule, rec)
	}
	return r.sign(m.Rule.ID, body), err
}

func fallback(err error, rule *domain.Rule, rec *domain.Record) string {
	return fmt.Sprintf("[rackbrain] Template formatting error (%s).\n\nRule: %s\nTicket: %s\nSN: %s\n",
		detail(err), ruleID(rule), rec.Ticket.Key, orDefault(rec.SN, "UNKNOWN_SN"))
}

// detail drops the sentinel prefix from a Format error.
func detail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// sign appends the signature once, unless ruleID is exempt or body is blank.
func (r *Renderer) sign(ruleID, body string) string {
	if _, ok := r.exempt[ruleID]; ok {
		return body
	}
	stripped := strings.TrimRight(body, " \t\r\n")
	if stripped == "" || strings.HasSuffix(stripped, r.signature) {
		return body
	}
	return stripped + "\n\n" + r.signature
}
