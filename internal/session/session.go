// Package session holds the state of one document run and persists it as
// checkpoints.
package session

import (
	"maps"
	"slices"
	"time"

	"github.com/itsmostafa/pagetree/internal/pageindex"
)

// Stage is a step of the pipeline state machine.
type Stage string

const (
	StageInit       Stage = "init"
	StageParsed     Stage = "parsed"
	StageTOCChecked Stage = "toc-checked"
	StageExtracted  Stage = "extracted"
	StageVerified   Stage = "verified"
	StageAssembled  Stage = "assembled"
	StageEnhanced   Stage = "enhanced"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further transition follows s.
func (s Stage) Terminal() bool {
	return s == StageEnhanced || s == StageFailed
}

// EventStatus is the outcome recorded by an Event.
type EventStatus string

const (
	StatusStarted   EventStatus = "started"
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
	StatusFallback  EventStatus = "fallback"
)

// Event is one entry of the attempt log.
type Event struct {
	Stage     Stage          `json:"stage"`
	Status    EventStatus    `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Session is an immutable snapshot of one run. Every With* method returns
// a new value and leaves the receiver untouched.
type Session struct {
	ID                string                    `json:"sessionId"`
	Document          string                    `json:"document,omitempty"`
	Stage             Stage                     `json:"stage"`
	Strategy          pageindex.Strategy        `json:"strategy,omitempty"`
	Confidence        float64                   `json:"confidence"`
	BelowThreshold    bool                      `json:"belowThreshold,omitempty"`
	TOC               *pageindex.TocInfo        `json:"tocInfo,omitempty"`
	StructureRaw      []pageindex.StructureItem `json:"structureRaw,omitempty"`
	StructureVerified []pageindex.StructureItem `json:"structureVerified,omitempty"`
	StructureFinal    []*pageindex.TreeNode     `json:"structureFinal,omitempty"`
	Events            []Event                   `json:"lastNLogEvents"`
	Failed            bool                      `json:"failed,omitempty"`
	Error             string                    `json:"error,omitempty"`
	CreatedAt         time.Time                 `json:"createdAt"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// New starts a session at StageInit.
func New(id, document string) Session {
	now := time.Now()
	return Session{ID: id, Document: document, Stage: StageInit, CreatedAt: now, UpdatedAt: now}
}

func (s Session) clone() Session {
	out := s
	out.Events = slices.Clone(s.Events)
	out.StructureRaw = pageindex.CloneItems(s.StructureRaw)
	out.StructureVerified = pageindex.CloneItems(s.StructureVerified)
	out.StructureFinal = pageindex.CloneTree(s.StructureFinal)
	if s.TOC != nil {
		toc := *s.TOC
		toc.PageIndices = slices.Clone(s.TOC.PageIndices)
		out.TOC = &toc
	}
	return out
}

// Record appends an event for the current stage.
func (s Session) Record(status EventStatus, details map[string]any) Session {
	out := s.clone()
	now := time.Now()
	out.Events = append(out.Events, Event{Stage: s.Stage, Status: status, Timestamp: now, Details: maps.Clone(details)})
	out.UpdatedAt = now
	return out
}

// Advance moves to stage and records its completion.
func (s Session) Advance(stage Stage, details map[string]any) Session {
	out := s.clone()
	out.Stage = stage
	return out.Record(StatusCompleted, details)
}

// Fail moves to StageFailed, keeping the stage at which the error occurred
// in the event details.
func (s Session) Fail(err error) Session {
	out := s.clone()
	at := s.Stage
	out.Stage = StageFailed
	out.Failed = true
	out.Error = err.Error()
	return out.Record(StatusFailed, map[string]any{"at": string(at), "error": err.Error()})
}

// WithTOC returns a copy carrying toc.
func (s Session) WithTOC(toc pageindex.TocInfo) Session {
	out := s.clone()
	toc.PageIndices = slices.Clone(toc.PageIndices)
	out.TOC = &toc
	return out
}

// WithStrategy returns a copy carrying the chosen strategy and its prior
// confidence.
func (s Session) WithStrategy(strategy pageindex.Strategy, confidence float64) Session {
	out := s.clone()
	out.Strategy = strategy
	out.Confidence = confidence
	return out
}

// WithRaw returns a copy carrying the extracted items.
func (s Session) WithRaw(items []pageindex.StructureItem) Session {
	out := s.clone()
	out.StructureRaw = pageindex.CloneItems(items)
	return out
}

// WithVerified returns a copy carrying the verified items and the
// confidence after verification.
func (s Session) WithVerified(items []pageindex.StructureItem, confidence float64, below bool) Session {
	out := s.clone()
	out.StructureVerified = pageindex.CloneItems(items)
	out.Confidence = confidence
	out.BelowThreshold = below
	return out
}

// WithFinal returns a copy carrying the assembled tree.
func (s Session) WithFinal(roots []*pageindex.TreeNode) Session {
	out := s.clone()
	out.StructureFinal = pageindex.CloneTree(roots)
	return out
}

// LastEvents returns up to n of the most recent events, and always at
// least one when any exist.
func (s Session) LastEvents(n int) []Event {
	n = max(n, 1)
	if len(s.Events) <= n {
		return slices.Clone(s.Events)
	}
	return slices.Clone(s.Events[len(s.Events)-n:])
}
