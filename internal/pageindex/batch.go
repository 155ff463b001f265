package pageindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
)

// Query is one independent question for the batch scheduler. IDs must be
// unique within a Run.
type Query struct {
	ID      string
	Content string
}

// Answer is the scheduler's result for one Query. Exactly one of Result and
// Err is set.
type Answer struct {
	ID     string
	Result json.RawMessage
	Err    error
}

const batchEnvelope = `

You are given several independent items, each with an "id". Apply the task above to every item on its own.
Respond in JSON format, with one entry per item:
{
  "results": [
    {"id": "<item id>", "result": <the result for that item>}
  ]
}`

var batchSchema = oracle.MustCompileSchema("batch_response.json", `{
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "result"],
				"properties": {"id": {"type": ["string", "integer"]}}
			}
		}
	}
}`)

// Scheduler packs independent oracle queries into token-bounded batches.
// A batch that fails or comes back incomplete degrades to one call per
// missing item; items that still fail are answered with an error.
type Scheduler struct {
	oracle      oracle.Oracle
	tokenLimit  int
	concurrency int
	log         *logger.Logger
}

// NewScheduler creates a scheduler. tokenLimit bounds the instruction plus
// the items of one batch; concurrency bounds batches in flight.
func NewScheduler(o oracle.Oracle, tokenLimit, concurrency int, log *logger.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{oracle: o, tokenLimit: tokenLimit, concurrency: concurrency, log: logger.OrNop(log)}
}

// Plan splits queries into batches of indices. A new batch starts whenever
// the next item would push the batch past the token limit; an item that is
// too large on its own gets a batch to itself.
func (s *Scheduler) Plan(instruction string, queries []Query) [][]int {
	base := CountTokens(instruction + batchEnvelope)
	var batches [][]int
	var current []int
	used := base
	for i, q := range queries {
		cost := CountTokens(q.Content)
		if len(current) > 0 && used+cost > s.tokenLimit {
			batches = append(batches, current)
			current, used = nil, base
		}
		current = append(current, i)
		used += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Run answers every query, preserving caller order. It never fails as a
// whole; per-item failures are reported in Answer.Err.
func (s *Scheduler) Run(ctx context.Context, instruction string, queries []Query) []Answer {
	answers := make([]Answer, len(queries))
	if len(queries) == 0 {
		return answers
	}

	batches := s.Plan(instruction, queries)
	s.log.Debug("batch scheduler dispatch", "queries", len(queries), "batches", len(batches))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, batch := range batches {
		g.Go(func() error {
			s.runBatch(ctx, instruction, queries, batch, answers)
			return nil
		})
	}
	_ = g.Wait()
	return answers
}

func (s *Scheduler) runBatch(ctx context.Context, instruction string, queries []Query, batch []int, answers []Answer) {
	sub := make([]Query, len(batch))
	for j, i := range batch {
		sub[j] = queries[i]
	}

	results, batchErr := s.ask(ctx, instruction, sub)

	var pending []int
	for _, i := range batch {
		if r, ok := results[queries[i].ID]; ok {
			answers[i] = Answer{ID: queries[i].ID, Result: r}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return
	}

	if len(batch) == 1 {
		answers[batch[0]] = Answer{ID: queries[batch[0]].ID, Err: missingErr(queries[batch[0]].ID, batchErr)}
		return
	}

	s.log.Warn("batch degraded to per-item calls", "batch_size", len(batch), "missing", len(pending), "error", batchErr)
	for _, i := range pending {
		q := queries[i]
		single, err := s.ask(ctx, instruction, []Query{q})
		if r, ok := single[q.ID]; ok {
			answers[i] = Answer{ID: q.ID, Result: r}
			continue
		}
		answers[i] = Answer{ID: q.ID, Err: missingErr(q.ID, err)}
	}
}

func missingErr(id string, err error) error {
	if err == nil {
		err = fmt.Errorf("no result for item %s", id)
	}
	return &OracleError{Op: "batch item " + id, Err: err}
}

type batchItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type batchResponse struct {
	Results []struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
	} `json:"results"`
}

// ask sends one batch and returns the results keyed by id. Results for ids
// not in the request are ignored.
func (s *Scheduler) ask(ctx context.Context, instruction string, items []Query) (map[string]json.RawMessage, error) {
	payload := make([]batchItem, len(items))
	wanted := make(map[string]bool, len(items))
	for i, q := range items {
		payload[i] = batchItem{ID: q.ID, Content: q.Content}
		wanted[q.ID] = true
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	text, err := s.oracle.Ask(ctx, oracle.Request{
		Instruction: instruction + batchEnvelope,
		Content:     "Items:\n" + string(body),
	})
	if err != nil {
		return nil, err
	}

	resp, err := oracle.DecodeValidated[batchResponse](text, batchSchema)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(resp.Results))
	for _, r := range resp.Results {
		id := normalizeID(r.ID)
		if wanted[id] {
			out[id] = r.Result
		}
	}
	return out, nil
}

func normalizeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// DecodeAnswer decodes an answer's result into T. A result that arrives as
// a JSON string holding a JSON document is unwrapped first.
func DecodeAnswer[T any](a Answer) (T, error) {
	var out T
	if a.Err != nil {
		return out, a.Err
	}
	if err := json.Unmarshal(a.Result, &out); err == nil {
		return out, nil
	}
	var inner string
	if err := json.Unmarshal(a.Result, &inner); err != nil {
		return out, &OracleError{Op: "decode " + a.ID, Err: err}
	}
	out, err := oracle.ExtractJSON[T](inner)
	if err != nil {
		return out, &OracleError{Op: "decode " + a.ID, Err: err}
	}
	return out, nil
}

// indexID is the query id used for the i-th element of a caller slice.
func indexID(i int) string {
	return strconv.Itoa(i)
}

// yes reports whether an oracle answer means yes.
func yes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}
