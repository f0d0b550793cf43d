// Package enrich builds the enriched record for a ticket: text extraction
// from the ticket itself plus the test-history database, the latest
// failing SLT run and the ILOM open problems of EVE servers.
//
// Every lookup is optional. A failing lookup is logged and the record is
// built without it.
package enrich

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
	"github.com/mrz1836/rackbrain/internal/history"
	"github.com/mrz1836/rackbrain/internal/remote"
)

// Lookup is the test-history database surface used for enrichment.
type Lookup interface {
	ServerDetails(ctx context.Context, sn string) (*history.ServerDetails, error)
	LatestFailedRun(ctx context.Context, sn, testcaseContains, testset string) (*history.FailedRun, error)
}

// Builder builds enriched records. History and Remote may be nil.
type Builder struct {
	History Lookup
	Remote  remote.Runner
	Logger  zerolog.Logger
}

// Build returns the enriched record for ticket.
func (b *Builder) Build(ctx context.Context, ticket domain.Ticket) *domain.Record {
	rec := &domain.Record{Ticket: ticket}
	log := b.Logger.With().Str("issue_key", ticket.Key).Logger()

	rec.CombinedText = ticket.Summary + "\n\n" + ticket.Description
	rec.SN = extract.SN(rec.CombinedText)
	rec.Arch = extract.Arch(ticket.Summary)
	rec.Testcase = extract.FailedTestcase(ticket.Description)
	rec.ErrorDetails = extract.ErrorDetails(ticket.Description)

	applyKVFields(rec, extract.ParseKVFields(ticket.Description))
	applyComments(rec, ticket.Comments)

	if rec.SN != "" {
		b.applyServerDetails(ctx, rec, log)
	}
	if rec.TelnetCmd == "" {
		rec.TelnetCmd = firstNonEmpty(extract.TelnetCmd(rec.ErrorDetails), extract.TelnetCmd(rec.CombinedText))
	}
	if rec.Arch == "EVE" && rec.SN != "" {
		b.applyIlom(ctx, rec, log)
	}
	if rec.SN != "" {
		b.applyLatestRun(ctx, rec, log)
	}
	return rec
}

func applyKVFields(rec *domain.Record, kv extract.KVFields) {
	rec.EvbotVersion = kv.Get("EVEBOT Version")
	rec.JiraServerStatusID = kv.Get("Server Status ID")
	rec.JiraServerOK = kv.Get("Server OK")
	rec.JiraSLTAttempts = strings.TrimSpace(kv.Loose("slt attempts"))
	rec.JiraModel = kv.Get("Model")
	rec.JiraCustomerIPN = kv.Get("Customer IPN")
	rec.JiraSLTRackSN = kv.Get("SLT Rack SN")
	rec.JiraTM2Version = kv.Get("TM2 Version")
	rec.JiraTesterEmail = kv.Get("Tester Email")
	rec.JiraTestStarted = kv.Get("Test Started")
	rec.JiraTestFinished = kv.Get("Test Finished")

	started, ok1 := extract.ParseJiraTime(rec.JiraTestStarted)
	finished, ok2 := extract.ParseJiraTime(rec.JiraTestFinished)
	if ok1 && ok2 {
		minutes := finished.Sub(started).Minutes()
		rec.JiraTestDurationMinutes = &minutes
	}
}

func applyComments(rec *domain.Record, comments []domain.Comment) {
	if len(comments) == 0 {
		return
	}
	bodies := make([]string, 0, len(comments))
	for _, c := range comments {
		bodies = append(bodies, c.Body)
	}
	rec.JiraCommentsText = strings.Join(bodies, "\n\n")

	latest := LatestComment(comments)
	rec.JiraLatestCommentText = latest.Body
	rec.JiraLatestCommentAuthor = latest.Author
	rec.JiraLatestCommentAuthorDisplayName = latest.AuthorDisplayName
	rec.JiraLatestCommentAuthorEmail = latest.AuthorEmail
}

// LatestComment returns the comment with the greatest (created, updated,
// id) triple. Jira timestamps sort lexicographically. comments must not
// be empty.
func LatestComment(comments []domain.Comment) domain.Comment {
	latest := comments[0]
	for _, c := range comments[1:] {
		if commentAfter(c, latest) {
			latest = c
		}
	}
	return latest
}

func commentAfter(a, b domain.Comment) bool {
	if a.Created != b.Created {
		return a.Created > b.Created
	}
	if a.Updated != b.Updated {
		return a.Updated > b.Updated
	}
	return a.ID > b.ID
}

func (b *Builder) applyServerDetails(ctx context.Context, rec *domain.Record, log zerolog.Logger) {
	if b.History == nil {
		return
	}
	d, err := b.History.ServerDetails(ctx, rec.SN)
	if err != nil {
		log.Warn().Err(err).Str("sn", rec.SN).Msg("db lookup failed")
		return
	}
	if d == nil {
		return
	}

	rec.ServerStatusID = d.ServerStatusID
	rec.RackSN = d.RackSN
	rec.Model = extract.StripQuotes(d.Model)
	rec.CustomerIPN = extract.StripQuotes(d.CustomerIPN)
	rec.SLTRackSN = extract.StripQuotes(d.TestRackSN)
	rec.TesterEmail = extract.StripQuotes(d.TesterEmail)
	rec.FailureMessage = extract.StripQuotes(d.FailureMessage)
	rec.FailedTestset = d.FailedTestset
	rec.ServerErrorDetail = d.ServerErrorDetail

	// Telnet args show up in either column.
	rec.TelnetCmd = firstNonEmpty(extract.TelnetCmd(rec.FailureMessage), extract.TelnetCmd(rec.ServerErrorDetail))

	if tc := extract.StripQuotes(d.FailedTestcase); rec.Testcase == "" && tc != "" {
		rec.Testcase = tc
	}
	if rec.ErrorDetails == "" {
		rec.ErrorDetails = firstNonEmpty(rec.FailureMessage, rec.ServerErrorDetail)
	}
}

func (b *Builder) applyIlom(ctx context.Context, rec *domain.Record, log zerolog.Logger) {
	if b.Remote == nil {
		return
	}
	res, err := b.Remote.Run(ctx, rec.SN, constants.IlomOpenProblemsCmd)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("sn", rec.SN).Msg("ilom lookup failed")
		return
	case res.NoIP():
		log.Warn().Str("sn", rec.SN).Msg("ilom ip not found")
		return
	case !res.OK():
		log.Warn().Str("sn", rec.SN).Int("status", res.Status).Bool("executed", res.Executed).
			Str("stderr", res.Stderr).Msg("ilom command failed")
		return
	}

	rec.IlomOpenProblemsRaw = res.Stdout
	rec.IlomProblems = ParseOpenProblems(res.Stdout)
	log.Debug().Int("count", len(rec.IlomProblems)).Msg("ilom open problems")
}

func (b *Builder) applyLatestRun(ctx context.Context, rec *domain.Record, log zerolog.Logger) {
	if b.History == nil {
		return
	}
	run, err := b.History.LatestFailedRun(ctx, rec.SN, "", "")
	if err != nil {
		log.Warn().Err(err).Str("sn", rec.SN).Msg("failed to fetch latest slt run")
		return
	}
	if run == nil {
		return
	}

	if rec.ServerStatusID == nil {
		id := run.SLTID
		rec.ServerStatusID = &id
	}
	if rec.FailedTestset == "" {
		rec.FailedTestset = run.FailedTestset
	}
	if rec.FailureMessage == "" {
		rec.FailureMessage = run.FailureMessage
	}

	id := run.SLTID
	same := run.SameFailureCount
	rec.DBLatestSLTID = &id
	rec.DBLatestFailedTestset = run.FailedTestset
	rec.DBFailedTestcase = run.FailedTestcase
	rec.DBFailedTestcaseList = run.Testcases
	rec.DBSameFailureCount = &same

	log.Debug().Int64("slt_id", id).Str("failed_testset", run.FailedTestset).
		Str("failed_testcase", run.FailedTestcase).Int("same_failure_count", same).
		Msg("latest slt run")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
