package pageindex

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
)

// startWindow is how far into a page a title may appear and still count as
// starting the page.
const startWindow = 150

// Verifier samples extracted items, checks them against page text and
// repairs wrong locations.
type Verifier struct {
	sched *Scheduler
	opts  Options
	log   *logger.Logger
}

// NewVerifier creates a new Verifier with the given oracle.
func NewVerifier(o oracle.Oracle, opts Options, log *logger.Logger) *Verifier {
	log = logger.OrNop(log)
	return &Verifier{
		sched: NewScheduler(o, opts.BatchTokenLimit, opts.MaxConcurrency, log),
		opts:  opts,
		log:   log,
	}
}

// VerificationReport summarizes one verification run.
type VerificationReport struct {
	Total          int     `json:"total"`
	Clamped        int     `json:"clamped"`
	Sampled        int     `json:"sampled"`
	Checked        int     `json:"checked"`
	Correct        int     `json:"correct"`
	Accuracy       float64 `json:"accuracy"`
	RepairRounds   int     `json:"repair_rounds"`
	Repaired       int     `json:"repaired"`
	Unresolved     int     `json:"unresolved"`
	PostAccuracy   float64 `json:"post_accuracy"`
	Confidence     float64 `json:"confidence"`
	BelowThreshold bool    `json:"below_threshold"`
}

type verifyAnswer struct {
	Answer string `json:"answer"`
}

type locateAnswer struct {
	PhysicalIndex *int `json:"physical_index"`
}

// UnmarshalJSON reads the index from a tag, a number or null.
func (l *locateAnswer) UnmarshalJSON(data []byte) error {
	var item StructureItem
	if err := item.UnmarshalJSON(data); err != nil {
		return err
	}
	l.PhysicalIndex = item.PhysicalIndex
	return nil
}

// Verify clamps impossible locations, checks a random sample and, when the
// sampled accuracy is below the threshold, repairs the wrong items. Items
// that cannot be repaired keep a nil location; none are removed.
func (v *Verifier) Verify(ctx context.Context, items []StructureItem, pages []Page) ([]StructureItem, VerificationReport) {
	out := CloneItems(items)
	report := VerificationReport{Total: len(out)}

	for i := range out {
		if p := out[i].PhysicalIndex; p != nil && (*p > len(pages) || *p < 1) {
			out[i].PhysicalIndex = nil
			report.Clamped++
		}
	}

	sample := v.sample(len(out))
	report.Sampled = len(sample)

	var checked []int
	for _, i := range sample {
		if out[i].PhysicalIndex != nil {
			checked = append(checked, i)
		}
	}
	report.Checked = len(checked)

	incorrect := v.check(ctx, out, pages, checked)
	report.Correct = len(checked) - len(incorrect)
	if report.Checked > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Checked)
	}
	report.PostAccuracy = report.Accuracy

	if report.Accuracy < v.opts.AccuracyThreshold && len(incorrect) > 0 {
		report.RepairRounds, report.Repaired = v.repair(ctx, out, pages, incorrect)
		report.Unresolved = len(incorrect) - report.Repaired
		if report.Checked > 0 {
			report.PostAccuracy = float64(report.Correct+report.Repaired) / float64(report.Checked)
		}
	}

	report.Confidence = (report.Accuracy + report.PostAccuracy) / 2
	// Nothing checked means nothing measured, not a failed measurement.
	report.BelowThreshold = report.Checked > 0 && report.PostAccuracy < v.opts.AccuracyThreshold
	v.log.Info("verification complete",
		"sampled", report.Sampled, "accuracy", report.Accuracy,
		"post_accuracy", report.PostAccuracy, "repaired", report.Repaired, "unresolved", report.Unresolved)
	return out, report
}

// sample draws up to VerifySampleSize distinct indices in ascending order.
func (v *Verifier) sample(n int) []int {
	size := min(v.opts.VerifySampleSize, n)
	if size <= 0 {
		return nil
	}
	if size == n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	seed := v.opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(n)[:size]
	slices.Sort(idx)
	return idx
}

// check returns the indices among checked whose title is not confirmed on
// its page. A title found verbatim is confirmed without asking; oracle
// errors count as incorrect.
func (v *Verifier) check(ctx context.Context, items []StructureItem, pages []Page, checked []int) []int {
	var queries []Query
	var asked []int
	for _, i := range checked {
		page := pages[*items[i].PhysicalIndex-1]
		if containsFuzzy(page.Text, items[i].Title) {
			continue
		}
		asked = append(asked, i)
		queries = append(queries, Query{
			ID:      indexID(i),
			Content: fmt.Sprintf("Section title: %s\n\nPage text:\n%s", items[i].Title, truncateForPrompt(page.Text, 3000)),
		})
	}

	var incorrect []int
	for j, a := range v.sched.Run(ctx, VerifyTitleTask, queries) {
		res, err := DecodeAnswer[verifyAnswer](a)
		if err != nil || !yes(res.Answer) {
			incorrect = append(incorrect, asked[j])
		}
	}
	return incorrect
}

// repair relocates incorrect items within a window around their original
// guess, for up to MaxFixAttempts rounds. Items still unresolved afterwards
// are set to nil.
func (v *Verifier) repair(ctx context.Context, items []StructureItem, pages []Page, incorrect []int) (rounds, repaired int) {
	centers := make(map[int]int, len(incorrect))
	for _, i := range incorrect {
		centers[i] = *items[i].PhysicalIndex
	}

	pending := slices.Clone(incorrect)
	for rounds < v.opts.MaxFixAttempts && len(pending) > 0 {
		rounds++
		v.log.Debug("repair round", "round", rounds, "items", len(pending))

		queries := make([]Query, len(pending))
		windows := make([][2]int, len(pending))
		for j, i := range pending {
			lo := max(1, centers[i]-v.opts.RepairWindow)
			hi := min(len(pages), centers[i]+v.opts.RepairWindow)
			windows[j] = [2]int{lo, hi}
			queries[j] = Query{
				ID:      indexID(i),
				Content: fmt.Sprintf("Section title: %s\n\nDocument pages:\n%s", items[i].Title, MarkPages(pages[lo-1:hi])),
			}
		}

		var still []int
		for j, a := range v.sched.Run(ctx, RepairLocateTask, queries) {
			i := pending[j]
			res, err := DecodeAnswer[locateAnswer](a)
			if err != nil || res.PhysicalIndex == nil ||
				*res.PhysicalIndex < windows[j][0] || *res.PhysicalIndex > windows[j][1] {
				still = append(still, i)
				continue
			}
			items[i].PhysicalIndex = IntPtr(*res.PhysicalIndex)
			repaired++
		}
		pending = still
	}

	for _, i := range pending {
		items[i].PhysicalIndex = nil
	}
	return rounds, repaired
}

type startAnswer struct {
	StartBegin string `json:"start_begin"`
}

// CheckSectionStarts marks whether each item begins at the top of its page.
// A title within the first characters of the page is a yes without asking;
// other located items are asked in one batch and errors count as no. Items
// without a valid location are unknown.
func (v *Verifier) CheckSectionStarts(ctx context.Context, items []StructureItem, pages []Page) []StructureItem {
	out := CloneItems(items)

	var queries []Query
	var asked []int
	for i := range out {
		p := out[i].PhysicalIndex
		if p == nil || *p < 1 || *p > len(pages) {
			out[i].AppearStart = StartUnknown
			continue
		}
		text := pages[*p-1].Text
		if startsWithin(text, out[i].Title, startWindow) {
			out[i].AppearStart = StartYes
			continue
		}
		asked = append(asked, i)
		queries = append(queries, Query{
			ID:      indexID(i),
			Content: fmt.Sprintf("Section title: %s\n\nPage text (beginning):\n%s", out[i].Title, truncateForPrompt(text, 500)),
		})
	}

	for j, a := range v.sched.Run(ctx, StartCheckTask, queries) {
		res, err := DecodeAnswer[startAnswer](a)
		if err == nil && yes(res.StartBegin) {
			out[asked[j]].AppearStart = StartYes
		} else {
			out[asked[j]].AppearStart = StartNo
		}
	}
	return out
}

// normalizeTitle lowercases and collapses whitespace.
func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// containsFuzzy checks if the page contains the title, ignoring case and
// spacing differences.
func containsFuzzy(pageText, title string) bool {
	t := normalizeTitle(title)
	return t != "" && strings.Contains(normalizeTitle(pageText), t)
}

// startsWithin reports whether title occurs within the first n characters
// of the normalized page text.
func startsWithin(pageText, title string, n int) bool {
	t := normalizeTitle(title)
	if t == "" {
		return false
	}
	i := strings.Index(normalizeTitle(pageText), t)
	return i >= 0 && i <= n
}
