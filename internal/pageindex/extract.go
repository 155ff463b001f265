package pageindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
)

// Extractor produces flat structure items with one of the three strategies.
type Extractor struct {
	oracle   oracle.Oracle
	detector *TOCDetector
	sched    *Scheduler
	opts     Options
	log      *logger.Logger
}

// NewExtractor creates an Extractor with the given oracle.
func NewExtractor(o oracle.Oracle, opts Options, log *logger.Logger) *Extractor {
	log = logger.OrNop(log)
	return &Extractor{
		oracle:   o,
		detector: NewTOCDetector(o, opts, log),
		sched:    NewScheduler(o, opts.BatchTokenLimit, opts.MaxConcurrency, log),
		opts:     opts,
		log:      log,
	}
}

// Extract runs strategy s. It fails with a *StrategyPreconditionError when
// toc does not allow s, and with ErrNoItems when nothing was extracted.
func (e *Extractor) Extract(ctx context.Context, s Strategy, pages []Page, toc TocInfo) ([]StructureItem, error) {
	if err := s.Precondition(toc); err != nil {
		return nil, err
	}

	var items []StructureItem
	var err error
	switch s {
	case StrategyTOCWithPages:
		items, err = e.extractWithPages(ctx, pages, toc)
	case StrategyTOCNoPages:
		items, err = e.extractNoPages(ctx, pages, toc)
	default:
		items, err = e.ExtractNoTOC(ctx, pages)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", s, ErrNoItems)
	}
	return items, nil
}

// extractWithPages parses the TOC, calibrates the offset between claimed
// page numbers and physical pages on a sample window after the TOC, and
// applies that offset to every entry.
func (e *Extractor) extractWithPages(ctx context.Context, pages []Page, toc TocInfo) ([]StructureItem, error) {
	items, err := e.detector.TransformTOC(ctx, toc.RawContent)
	if err != nil {
		return nil, err
	}

	sampleStart := 1
	if n := len(toc.PageIndices); n > 0 {
		sampleStart = toc.PageIndices[n-1] + 1
	}
	var window []Page
	if sampleStart <= len(pages) {
		window = pages[sampleStart-1 : min(sampleStart-1+e.opts.OffsetSamplePages, len(pages))]
	}

	located := e.locateInSample(ctx, items, window)
	offset, ok := ModalOffset(items, located, sampleStart)
	e.log.Info("toc page offset calibrated", "offset", offset, "located", len(located), "calibrated", ok)

	return ApplyOffset(items, offset), nil
}

func (e *Extractor) locateInSample(ctx context.Context, items []StructureItem, window []Page) []StructureItem {
	if len(window) == 0 {
		return nil
	}
	entries, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil
	}
	prompt := fmt.Sprintf(TOCLocatePrompt, entries, MarkPages(window))
	response, err := e.oracle.Ask(ctx, oracle.Request{Instruction: prompt})
	if err != nil {
		e.log.Warn("toc sample location failed", "error", err)
		return nil
	}
	result, err := oracle.DecodeValidated[tocTransformResponse](response, tocSchema)
	if err != nil {
		e.log.Warn("toc sample location unparseable", "error", err)
		return nil
	}
	return result.TableOfContents
}

// ModalOffset returns the most frequent difference between located physical
// pages and claimed TOC pages, counting only locations at or after
// sampleStart. Ties go to the difference seen first. ok is false when no
// pair could be measured, in which case the offset is zero.
func ModalOffset(claimed, located []StructureItem, sampleStart int) (offset int, ok bool) {
	pageByTitle := make(map[string]int, len(claimed))
	for _, it := range claimed {
		if it.Page == nil {
			continue
		}
		key := normalizeTitle(it.Title)
		if _, seen := pageByTitle[key]; !seen {
			pageByTitle[key] = *it.Page
		}
	}

	counts := make(map[int]int)
	var order []int
	for _, loc := range located {
		if loc.PhysicalIndex == nil || *loc.PhysicalIndex < sampleStart {
			continue
		}
		page, found := pageByTitle[normalizeTitle(loc.Title)]
		if !found {
			continue
		}
		diff := *loc.PhysicalIndex - page
		if counts[diff] == 0 {
			order = append(order, diff)
		}
		counts[diff]++
	}

	if len(order) == 0 {
		return 0, false
	}
	best := order[0]
	for _, d := range order[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best, true
}

// ApplyOffset sets each entry's physical index to its claimed page plus
// offset. Entries without a claimed page stay unresolved.
func ApplyOffset(items []StructureItem, offset int) []StructureItem {
	out := CloneItems(items)
	for i := range out {
		if out[i].Page != nil {
			out[i].PhysicalIndex = IntPtr(*out[i].Page + offset)
		}
	}
	return out
}

// extractNoPages parses the TOC and finds where each entry begins by
// matching it against every chunk of the document. Chunks are sent as one
// batch and merged in document order, so an entry resolved by an earlier
// chunk is never overwritten by a later one.
func (e *Extractor) extractNoPages(ctx context.Context, pages []Page, toc TocInfo) ([]StructureItem, error) {
	items, err := e.detector.TransformTOC(ctx, toc.RawContent)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	type entry struct {
		Structure string `json:"structure,omitempty"`
		Title     string `json:"title"`
	}
	entries := make([]entry, len(items))
	for i, it := range items {
		entries[i] = entry{Structure: it.Structure, Title: it.Title}
	}
	listing, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal toc entries: %w", err)
	}

	chunks := ChunkPages(pages, e.opts.MaxTokenNumEachNode, e.opts.ChunkOverlapPages)
	queries := make([]Query, len(chunks))
	for i, c := range chunks {
		queries[i] = Query{ID: indexID(i), Content: c.Text}
	}
	answers := e.sched.Run(ctx, fmt.Sprintf(TOCMatchTask, listing), queries)

	out := CloneItems(items)
	for i, a := range answers {
		matches, err := DecodeAnswer[[]StructureItem](a)
		if err != nil {
			e.log.Warn("chunk match failed", "chunk", i, "error", err)
			continue
		}
		resolveMatches(out, matches, chunks[i])
	}
	return out, nil
}

// resolveMatches records matched locations inside chunk for entries that
// are still unresolved.
func resolveMatches(items []StructureItem, matches []StructureItem, chunk Chunk) {
	for _, m := range matches {
		if m.PhysicalIndex == nil {
			continue
		}
		p := *m.PhysicalIndex
		if p < chunk.StartPage || p > chunk.EndPage {
			continue
		}
		if i := findUnresolved(items, m); i >= 0 {
			items[i].PhysicalIndex = IntPtr(p)
		}
	}
}

func findUnresolved(items []StructureItem, m StructureItem) int {
	title := normalizeTitle(m.Title)
	if m.Structure != "" {
		for i, it := range items {
			if it.PhysicalIndex == nil && it.Structure == m.Structure && normalizeTitle(it.Title) == title {
				return i
			}
		}
		for i, it := range items {
			if it.PhysicalIndex == nil && it.Structure == m.Structure {
				return i
			}
		}
	}
	for i, it := range items {
		if it.PhysicalIndex == nil && normalizeTitle(it.Title) == title {
			return i
		}
	}
	return -1
}

// ExtractNoTOC infers a structure from content alone. The first chunk
// seeds the structure and every later chunk may only add sections that
// continue it, so chunks are processed strictly in order.
func (e *Extractor) ExtractNoTOC(ctx context.Context, pages []Page) ([]StructureItem, error) {
	chunks := ChunkPages(pages, e.opts.MaxTokenNumEachNode, e.opts.ChunkOverlapPages)

	var structure []StructureItem
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var prompt string
		if len(structure) == 0 {
			prompt = fmt.Sprintf(GenerateInitPrompt, c.Text)
		} else {
			tail, err := json.MarshalIndent(structure[max(0, len(structure)-3):], "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal structure tail: %w", err)
			}
			prompt = fmt.Sprintf(GenerateContinuePrompt, tail, c.Text)
		}

		response, err := e.oracle.Ask(ctx, oracle.Request{Instruction: prompt})
		if err != nil {
			e.log.Warn("structure generation failed", "chunk", i, "error", err)
			continue
		}
		found, err := decodeItemList(response)
		if err != nil {
			e.log.Warn("structure generation unparseable", "chunk", i, "error", err)
			continue
		}
		structure = appendNew(structure, found)
	}
	return structure, nil
}

// decodeItemList accepts a bare array or an object wrapping one.
func decodeItemList(response string) ([]StructureItem, error) {
	items, err := oracle.ExtractJSON[[]StructureItem](response)
	if err == nil {
		return items, nil
	}
	wrapped, werr := oracle.ExtractJSON[tocTransformResponse](response)
	if werr != nil || wrapped.TableOfContents == nil {
		return nil, err
	}
	return wrapped.TableOfContents, nil
}

// appendNew appends found items that do not repeat an existing entry.
// Overlapping chunk pages make oracles re-report the boundary section, either
// under its original code or by title on the same page. A new item whose
// code is already taken is renumbered rather than dropped.
func appendNew(structure, found []StructureItem) []StructureItem {
	type key struct{ structure, title string }
	seen := make(map[key]bool, len(structure))
	onPage := make(map[key]bool, len(structure))
	for _, it := range structure {
		seen[key{it.Structure, normalizeTitle(it.Title)}] = true
		if it.PhysicalIndex != nil {
			onPage[key{strconv.Itoa(*it.PhysicalIndex), normalizeTitle(it.Title)}] = true
		}
	}

	codes := newCodeAllocator(structure)
	for _, it := range found {
		title := normalizeTitle(it.Title)
		if it.Title == "" || seen[key{it.Structure, title}] {
			continue
		}
		if it.PhysicalIndex != nil && onPage[key{strconv.Itoa(*it.PhysicalIndex), title}] {
			continue
		}
		seen[key{it.Structure, title}] = true
		it.Structure = codes.assign(it.Structure)
		seen[key{it.Structure, title}] = true
		if it.PhysicalIndex != nil {
			onPage[key{strconv.Itoa(*it.PhysicalIndex), title}] = true
		}
		structure = append(structure, it)
	}
	return structure
}

// codeAllocator keeps structure codes unique within one extraction result.
// A taken code moves to the next free sibling, and later items under the
// original code follow it, so "2.1" after a renumbered "2" becomes "3.1".
type codeAllocator struct {
	taken   map[string]bool
	renamed map[string]string
}

func newCodeAllocator(existing []StructureItem) *codeAllocator {
	a := &codeAllocator{taken: make(map[string]bool, len(existing)), renamed: map[string]string{}}
	for _, it := range existing {
		if it.Structure != "" {
			a.taken[it.Structure] = true
		}
	}
	return a
}

// assign returns the code to use for an item reported as code. Empty codes
// are roots and never conflict.
func (a *codeAllocator) assign(code string) string {
	if code == "" {
		return code
	}
	orig := code
	code = a.rewrite(code)
	if a.taken[code] {
		code = a.nextSibling(code)
		a.renamed[orig] = code
	}
	a.taken[code] = true
	return code
}

// rewrite applies the longest renamed prefix of code.
func (a *codeAllocator) rewrite(code string) string {
	for prefix := code; prefix != ""; prefix = getParentStructure(prefix) {
		if to, ok := a.renamed[prefix]; ok {
			return to + strings.TrimPrefix(code, prefix)
		}
	}
	return code
}

func (a *codeAllocator) nextSibling(code string) string {
	parent, last := "", code
	if i := strings.LastIndex(code, "."); i >= 0 {
		parent, last = code[:i+1], code[i+1:]
	}
	if n, err := strconv.Atoi(last); err == nil {
		for n++; a.taken[parent+strconv.Itoa(n)]; n++ {
		}
		return parent + strconv.Itoa(n)
	}
	n := 2
	for a.taken[code+strconv.Itoa(n)] {
		n++
	}
	return code + strconv.Itoa(n)
}

// UniqueStructures renumbers repeated structure codes so every item keeps a
// distinct code. No item is dropped.
func UniqueStructures(items []StructureItem) []StructureItem {
	codes := newCodeAllocator(nil)
	for i := range items {
		items[i].Structure = codes.assign(items[i].Structure)
	}
	return items
}
