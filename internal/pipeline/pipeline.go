// Package pipeline runs documents through the structure extraction state
// machine and answers read queries over past sessions.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
	"github.com/itsmostafa/pagetree/internal/pageindex"
	"github.com/itsmostafa/pagetree/internal/pagesource"
	"github.com/itsmostafa/pagetree/internal/session"
)

// Options configures a Pipeline.
type Options struct {
	Index pageindex.Options

	// Strategy forces an extraction strategy; empty selects one from the TOC
	Strategy pageindex.Strategy
}

// Pipeline sequences the stages of one document run. Stages never overlap;
// each consumes the committed output of the previous one and a checkpoint
// is written after every transition.
type Pipeline struct {
	source pagesource.Source
	oracle oracle.Oracle
	store  *session.Store
	opts   Options
	log    *logger.Logger
}

// New creates a Pipeline. A pipeline used only for Status and ListSessions
// may have a nil source and oracle.
func New(source pagesource.Source, o oracle.Oracle, store *session.Store, opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{source: source, oracle: o, store: store, opts: opts, log: logger.OrNop(log)}
}

// Result is a completed run.
type Result struct {
	SessionID          string                       `json:"session_id"`
	Strategy           pageindex.Strategy           `json:"strategy"`
	Fallback           bool                         `json:"fallback"`
	StrategyConfidence float64                      `json:"strategy_confidence"`
	Confidence         float64                      `json:"confidence"`
	BelowThreshold     bool                         `json:"below_threshold"`
	Verification       pageindex.VerificationReport `json:"verification"`
	CheckpointPath     string                       `json:"checkpoint_path"`
	Document           *pageindex.Document          `json:"document"`
}

// run carries the state of one Process call.
type run struct {
	s    session.Session
	log  *logger.Logger
	path string
}

// Process runs the document at path through every stage. Corpus-level
// failures return a *Failure; per-item oracle failures are absorbed.
func (p *Pipeline) Process(ctx context.Context, path string) (*Result, error) {
	id := p.store.NewID()
	r := &run{s: session.New(id, filepath.Base(path)), log: p.log.With("session_id", id)}
	r.s = r.s.Record(session.StatusStarted, map[string]any{"path": path, "source": p.source.Name()})
	p.checkpoint(r)

	pages, err := p.source.Pages(ctx, path)
	if err != nil {
		return nil, p.fail(r, session.StageParsed, err)
	}
	if len(pages) == 0 {
		return nil, p.fail(r, session.StageParsed, &pageindex.InputError{Path: path, Err: pageindex.ErrNoPages})
	}
	p.advance(r, r.s.Advance(session.StageParsed, map[string]any{"pages": len(pages)}))

	toc, err := pageindex.NewTOCDetector(p.oracle, p.opts.Index, r.log).DetectTOC(ctx, pages)
	if err != nil {
		return nil, p.fail(r, session.StageTOCChecked, err)
	}
	p.advance(r, r.s.WithTOC(toc).Advance(session.StageTOCChecked, map[string]any{
		"found":            toc.Found,
		"pages":            toc.PageIndices,
		"has_page_numbers": toc.HasPageNumbers,
	}))

	items, strategy, fallback, err := p.extract(ctx, r, pages, toc)
	if err != nil {
		return nil, p.fail(r, session.StageExtracted, err)
	}
	prior := strategy.Confidence(fallback)
	p.advance(r, r.s.WithStrategy(strategy, prior).WithRaw(items).Advance(session.StageExtracted, map[string]any{
		"strategy": string(strategy),
		"items":    len(items),
		"fallback": fallback,
	}))

	if err := ctx.Err(); err != nil {
		return nil, p.fail(r, session.StageVerified, err)
	}
	verifier := pageindex.NewVerifier(p.oracle, p.opts.Index, r.log)
	verified, report := verifier.Verify(ctx, items, pages)
	verified = verifier.CheckSectionStarts(ctx, verified, pages)
	confidence := prior
	if report.Checked > 0 {
		confidence = prior * report.Confidence
	}
	if report.BelowThreshold {
		r.log.Warn("verification below threshold", "stage", session.StageVerified, "accuracy", report.PostAccuracy, "threshold", p.opts.Index.AccuracyThreshold)
	}
	p.advance(r, r.s.WithVerified(verified, confidence, report.BelowThreshold).Advance(session.StageVerified, map[string]any{
		"accuracy":        report.Accuracy,
		"post_accuracy":   report.PostAccuracy,
		"repair_rounds":   report.RepairRounds,
		"unresolved":      report.Unresolved,
		"below_threshold": report.BelowThreshold,
		"confidence":      confidence,
	}))

	if err := ctx.Err(); err != nil {
		return nil, p.fail(r, session.StageAssembled, err)
	}
	roots := pageindex.AssembleTree(verified, len(pages))
	if err := pageindex.CheckInvariants(roots, pageindex.CountItems(verified)); err != nil {
		return nil, p.fail(r, session.StageAssembled, err)
	}
	p.advance(r, r.s.WithFinal(roots).Advance(session.StageAssembled, map[string]any{"roots": len(roots)}))

	doc := &pageindex.Document{Name: filepath.Base(path), Structure: roots}
	pageindex.NewEnhancer(p.oracle, p.opts.Index, r.log).Enhance(ctx, doc, pages)
	p.advance(r, r.s.WithFinal(doc.Structure).Advance(session.StageEnhanced, map[string]any{
		"nodes": len(pageindex.FlattenTree(doc.Structure)),
	}))

	r.log.Info("document processed", "stage", session.StageEnhanced, "strategy", strategy, "confidence", confidence)
	return &Result{
		SessionID:          id,
		Strategy:           strategy,
		Fallback:           fallback,
		StrategyConfidence: prior,
		Confidence:         confidence,
		BelowThreshold:     report.BelowThreshold,
		Verification:       report,
		CheckpointPath:     r.path,
		Document:           doc,
	}, nil
}

// extract runs the selected strategy and, when it fails for any reason but
// bad input or cancellation, retries once with no_toc. The same strategy
// is never attempted twice.
func (p *Pipeline) extract(ctx context.Context, r *run, pages []pageindex.Page, toc pageindex.TocInfo) ([]pageindex.StructureItem, pageindex.Strategy, bool, error) {
	strategy := p.opts.Strategy
	if strategy == "" {
		strategy = pageindex.SelectStrategy(toc)
	}
	r.log.Info("extraction strategy selected", "stage", session.StageExtracted, "strategy", strategy)

	extractor := pageindex.NewExtractor(p.oracle, p.opts.Index, r.log)
	items, err := extractor.Extract(ctx, strategy, pages, toc)
	if err == nil {
		return items, strategy, false, nil
	}

	var inputErr *pageindex.InputError
	if strategy == pageindex.StrategyNoTOC || errors.As(err, &inputErr) || ctx.Err() != nil {
		return nil, strategy, false, err
	}

	r.log.Warn("strategy failed, falling back", "stage", session.StageExtracted, "strategy", strategy, "error", err)
	r.s = r.s.Record(session.StatusFallback, map[string]any{
		"from":  string(strategy),
		"to":    string(pageindex.StrategyNoTOC),
		"error": err.Error(),
	})
	p.checkpoint(r)

	items, err = extractor.Extract(ctx, pageindex.StrategyNoTOC, pages, toc)
	if err != nil {
		return nil, pageindex.StrategyNoTOC, true, err
	}
	return items, pageindex.StrategyNoTOC, true, nil
}

func (p *Pipeline) advance(r *run, next session.Session) {
	r.s = next
	r.log.Debug("stage completed", "stage", next.Stage)
	p.checkpoint(r)
}

// checkpoint persists the session. A failed write is logged and does not
// stop the run.
func (p *Pipeline) checkpoint(r *run) {
	path, err := p.store.Save(r.s)
	if err != nil {
		r.log.Error("checkpoint write failed", "stage", r.s.Stage, "error", err)
		return
	}
	r.path = path
	r.log.Debug("checkpoint written", "stage", r.s.Stage, "path", path)
}

func (p *Pipeline) fail(r *run, stage session.Stage, err error) *Failure {
	r.log.Error("session failed", "stage", stage, "error", err)
	r.s = r.s.Fail(err)
	p.checkpoint(r)
	return &Failure{
		SessionID:      r.s.ID,
		Stage:          stage,
		Err:            err,
		Suggestions:    Suggestions(stage, err),
		CheckpointPath: r.path,
	}
}

// Status values reported by Pipeline.Status.
const (
	StatusFound    = "found"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// StatusReport describes a stored session.
type StatusReport struct {
	Status         string          `json:"status"`
	SessionID      string          `json:"session_id"`
	Document       string          `json:"document,omitempty"`
	Stage          session.Stage   `json:"stage,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	Confidence     float64         `json:"confidence"`
	BelowThreshold bool            `json:"below_threshold"`
	Failed         bool            `json:"failed"`
	Error          string          `json:"error,omitempty"`
	LastEvents     []session.Event `json:"last_events,omitempty"`
	CheckpointPath string          `json:"checkpoint_path,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at,omitzero"`
}

// Status reads the checkpoint of one session.
func (p *Pipeline) Status(id string) StatusReport {
	s, err := p.store.Load(id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return StatusReport{Status: StatusNotFound, SessionID: id}
	case err != nil:
		return StatusReport{Status: StatusError, SessionID: id, Error: err.Error(), CheckpointPath: p.store.Path(id)}
	}
	return StatusReport{
		Status:         StatusFound,
		SessionID:      s.ID,
		Document:       s.Document,
		Stage:          s.Stage,
		Strategy:       string(s.Strategy),
		Confidence:     s.Confidence,
		BelowThreshold: s.BelowThreshold,
		Failed:         s.Failed,
		Error:          s.Error,
		LastEvents:     s.Events,
		CheckpointPath: p.store.Path(s.ID),
		UpdatedAt:      s.UpdatedAt,
	}
}

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID         string        `json:"id"`
	Document   string        `json:"document,omitempty"`
	Stage      session.Stage `json:"stage"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Confidence float64       `json:"confidence"`
	Failed     bool          `json:"failed"`
}

// ListSessions summarizes every stored session, newest first.
func (p *Pipeline) ListSessions() ([]SessionSummary, error) {
	sessions, err := p.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSummary{
			ID:         s.ID,
			Document:   s.Document,
			Stage:      s.Stage,
			UpdatedAt:  s.UpdatedAt,
			Confidence: s.Confidence,
			Failed:     s.Failed,
		}
	}
	return out, nil
}
