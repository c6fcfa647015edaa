package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/sitebot/internal/fetch"
	"github.com/mohammad-safakhou/sitebot/internal/relevance"
	"github.com/mohammad-safakhou/sitebot/internal/session"
	"github.com/mohammad-safakhou/sitebot/internal/telemetry"
)

// Fetcher retrieves and cleans a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (fetch.PageContent, error)
}

// Engine drives a session through the crawl, decide and answer steps
// until it reaches a terminal status.
type Engine struct {
	fetcher       Fetcher
	oracle        Oracle
	maxPages      int
	topCandidates int
	tele          *telemetry.Telemetry
	logger        *log.Logger
}

type Options struct {
	MaxPages      int
	TopCandidates int
	Telemetry     *telemetry.Telemetry
}

func New(fetcher Fetcher, oracle Oracle, opts Options) *Engine {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.TopCandidates <= 0 {
		opts.TopCandidates = 5
	}
	return &Engine{
		fetcher:       fetcher,
		oracle:        oracle,
		maxPages:      opts.MaxPages,
		topCandidates: opts.TopCandidates,
		tele:          opts.Telemetry,
		logger:        log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
}

// Run executes the session loop to completion. The returned error is
// non-nil only when the session ends failed; a session that merely ran
// out of useful pages still produces an answer.
func (e *Engine) Run(ctx context.Context, st *session.State) error {
	// A crawl+decide pair per page plus slack for the answer step. If
	// the loop somehow exceeds this the oracle is stalling and we force
	// an answer from whatever was collected.
	maxIterations := 2*e.maxPages + 4
	iterations := 0

	for {
		if err := ctx.Err(); err != nil {
			st.Fail(fmt.Errorf("session aborted: %w", err))
			e.tele.SessionFinished(string(st.Status()))
			return st.FailureReason()
		}
		iterations++
		if iterations > maxIterations && st.Status() != session.StatusAnswering {
			e.logger.Printf("session %s exceeded %d iterations, forcing answer", st.ID(), maxIterations)
			st.SetStatus(session.StatusAnswering)
		}

		switch st.Status() {
		case session.StatusCrawling:
			e.crawlStep(ctx, st)
		case session.StatusDeciding:
			e.decideStep(ctx, st)
		case session.StatusAnswering:
			err := e.answerStep(ctx, st)
			e.tele.SessionFinished(string(st.Status()))
			return err
		case session.StatusDone, session.StatusFailed:
			e.tele.SessionFinished(string(st.Status()))
			return st.FailureReason()
		default:
			st.Fail(fmt.Errorf("unknown session status %q", st.Status()))
			e.tele.SessionFinished(string(st.Status()))
			return st.FailureReason()
		}
	}
}

// crawlStep pops the best candidate and fetches it. The URL is marked
// visited regardless of outcome so it is never retried by the loop.
func (e *Engine) crawlStep(ctx context.Context, st *session.State) {
	cand, ok := st.PopCandidate()
	if !ok {
		st.SetStatus(session.StatusAnswering)
		return
	}
	if st.IsVisited(cand.URL) {
		return
	}
	st.MarkVisited(cand.URL)

	started := time.Now()
	content, err := e.fetcher.Fetch(ctx, cand.URL)
	if err != nil {
		e.tele.PageFetched("error", time.Since(started))
		e.logger.Printf("session %s fetch %s failed: %v", st.ID(), cand.URL, err)
		st.SetStatus(session.StatusDeciding)
		return
	}
	e.tele.PageFetched("ok", time.Since(started))

	rec := &session.PageRecord{
		URL:       content.URL,
		Title:     content.Title,
		BodyText:  content.BodyText,
		FetchedAt: time.Now(),
	}
	for _, l := range content.Links {
		rec.Links = append(rec.Links, session.PageLink{Href: l.Href, AnchorText: l.AnchorText})
	}
	st.AddPage(rec)

	keywords := st.Keywords()
	for _, l := range content.Links {
		score := relevance.ScoreLink(l.AnchorText, l.Href, keywords)
		st.AddCandidate(l.Href, score, content.URL, l.AnchorText)
	}

	e.logger.Printf("session %s fetched %s (%d links, %d pending)", st.ID(), content.URL, len(content.Links), st.PendingCount())
	st.SetStatus(session.StatusDeciding)
}

// decideStep asks the oracle whether to keep exploring. Exploration is
// only honored while the page budget and the frontier allow it.
func (e *Engine) decideStep(ctx context.Context, st *session.State) {
	prompt := buildDecisionContext(st, e.maxPages, e.topCandidates)

	started := time.Now()
	raw, err := e.oracle.Decide(ctx, prompt)
	if err != nil {
		e.tele.OracleCall("decision", "error", time.Since(started))
		e.logger.Printf("session %s decision oracle failed: %v", st.ID(), err)
		st.SetStatus(session.StatusAnswering)
		return
	}
	e.tele.OracleCall("decision", "ok", time.Since(started))

	decision := parseDecision(raw)
	if decision.Action != ActionExplore {
		st.SetStatus(session.StatusAnswering)
		return
	}
	if st.PendingCount() == 0 || st.VisitedCount() >= e.maxPages {
		e.logger.Printf("session %s explore refused: %d pending, %d/%d visited", st.ID(), st.PendingCount(), st.VisitedCount(), e.maxPages)
		st.SetStatus(session.StatusAnswering)
		return
	}
	if decision.NextURL != "" {
		if target, ok := st.FindPending(decision.NextURL); ok {
			st.Promote(target)
		}
	}
	st.SetStatus(session.StatusCrawling)
}

// answerStep synthesizes the final answer. This is the only place a
// session can end failed.
func (e *Engine) answerStep(ctx context.Context, st *session.State) error {
	prompt := buildSynthesisPrompt(st)

	started := time.Now()
	answer, err := e.oracle.Synthesize(ctx, prompt)
	if err != nil {
		e.tele.OracleCall("synthesis", "error", time.Since(started))
		st.Fail(fmt.Errorf("answer synthesis failed: %w", err))
		return st.FailureReason()
	}
	e.tele.OracleCall("synthesis", "ok", time.Since(started))

	if err := st.SetAnswer(answer); err != nil {
		st.Fail(err)
		return st.FailureReason()
	}
	e.logger.Printf("session %s answered after %d pages", st.ID(), st.PageCount())
	return nil
}
