package testview

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
	"github.com/mrz1836/rackbrain/internal/history"
)

// RunFinder finds the newest failing SLT run of a server.
type RunFinder interface {
	LatestFailedRun(ctx context.Context, sn, testcaseContains, testset string) (*history.FailedRun, error)
}

// API is the TestView HTTP surface the Service needs.
type API interface {
	FetchLog(ctx context.Context, sn string, sltID int64, testset, testcase string) (string, error)
	StartSLT(ctx context.Context, sn, operation string, validate bool) (StartResult, error)
}

// Service fills TestView fields on a record.
type Service struct {
	runs   RunFinder
	api    API
	logger zerolog.Logger
}

// NewService returns a Service.
func NewService(runs RunFinder, api API, logger zerolog.Logger) *Service {
	return &Service{runs: runs, api: api, logger: logger}
}

// PopulateLog fetches the log requested by req and stores the full text
// and selected snippet on rec. Failures are recorded in
// rec.TestviewLogError for the comment, never returned.
func (s *Service) PopulateLog(ctx context.Context, rec *domain.Record, req *domain.TestviewRequest) {
	if req == nil {
		return
	}
	testcase := strings.TrimSpace(req.TestcaseContains)
	if testcase == "" || rec.SN == "" {
		return
	}

	rec.TestviewLogError = ""
	rec.TestviewLogSnippet = ""

	testset := firstNonEmpty(strings.TrimSpace(req.Testset), rec.DBLatestFailedTestset, rec.FailedTestset)
	log := s.logger.With().Str("issue_key", rec.Ticket.Key).Str("sn", rec.SN).Logger()

	run, err := s.runs.LatestFailedRun(ctx, rec.SN, testcase, testset)
	if err != nil {
		rec.TestviewLogError = fmt.Sprintf("TestView log/snippet fetch failed: %v", err)
		log.Warn().Err(err).Msg("failed to look up testview run")
		return
	}
	if run == nil {
		rec.TestviewLogError = fmt.Sprintf("TestView run not found for sn=%s testcase_contains=%s testset=%s",
			rec.SN, repr(testcase), repr(testset))
		return
	}

	chosen := history.ChooseTestcase(run.Testcases, testcase)
	var text string
	if chosen != "" {
		text, err = s.api.FetchLog(ctx, run.SN, run.SLTID, run.FailedTestset, chosen)
		if err != nil {
			rec.TestviewLogError = fmt.Sprintf("TestView log/snippet fetch failed: %v", err)
			log.Warn().Err(err).Int64("slt_id", run.SLTID).Msg("failed to fetch testview log")
			return
		}
	} else {
		chosen = testcase
	}
	if text == "" {
		rec.TestviewLogError = fmt.Sprintf("TestView log download returned empty for sn=%s slt_id=%d testset=%s testcase=%s",
			rec.SN, run.SLTID, repr(run.FailedTestset), repr(chosen))
		return
	}
	rec.TestviewLogText = text

	snippet, found := extract.SelectLogSegment(text, req.Select)
	if !found {
		if req.Select.HasSelector() {
			rec.TestviewLogError = fmt.Sprintf(
				"TestView snippet selector did not match for sn=%s slt_id=%d testset=%s testcase=%s line_contains=%s",
				rec.SN, run.SLTID, repr(run.FailedTestset), repr(chosen), repr(req.Select.LineContains))
		}
		return
	}
	rec.TestviewLogSnippet = snippet
}

// StartSLT starts operation on rec's server and records the responses on
// rec. In dry-run mode nothing is sent and a placeholder response is
// recorded instead.
func (s *Service) StartSLT(ctx context.Context, rec *domain.Record, operation string, validate, dryRun bool) {
	if rec.SN == "" {
		return
	}
	if operation == "" {
		operation = "SLT"
	}
	log := s.logger.With().Str("issue_key", rec.Ticket.Key).Str("sn", rec.SN).Str("operation", operation).Logger()

	if dryRun {
		log.Info().Msg("dry run, would start testview operation")
		rec.SLTStartStatus = nil
		rec.SLTStartResponse = fmt.Sprintf("DRY RUN - would start %s for %s", operation, rec.SN)
		return
	}

	res, err := s.api.StartSLT(ctx, rec.SN, operation, validate)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start testview operation")
		rec.SLTStartStatus = nil
		rec.SLTStartResponse = fmt.Sprintf("Exception: %v", err)
		return
	}

	rec.SLTValidateStatus = res.ValidateStatus
	rec.SLTValidateResponse = res.ValidateText
	status := res.StartStatus
	rec.SLTStartStatus = &status
	rec.SLTStartResponse = res.StartText
	log.Info().Int("start_status", status).Msg("testview operation started")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// repr quotes s the way operators read it in comments; empty is None.
func repr(s string) string {
	if s == "" {
		return "None"
	}
	return "'" + s + "'"
}
