package pageindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
)

// maxSubdivideDepth bounds how many times a node's descendants are split again.
const maxSubdivideDepth = 3

// Enhancer adds optional detail to an assembled tree. No enhancement step
// fails the document; problems are logged and the tree is kept as is.
type Enhancer struct {
	oracle    oracle.Oracle
	extractor *Extractor
	sched     *Scheduler
	opts      Options
	log       *logger.Logger
}

// NewEnhancer creates an Enhancer with the given oracle.
func NewEnhancer(o oracle.Oracle, opts Options, log *logger.Logger) *Enhancer {
	log = logger.OrNop(log)
	return &Enhancer{
		oracle:    o,
		extractor: NewExtractor(o, opts, log),
		sched:     NewScheduler(o, opts.BatchTokenLimit, opts.MaxConcurrency, log),
		opts:      opts,
		log:       log,
	}
}

// Enhance subdivides large leaves and then applies the enabled additions:
// node ids, node text, summaries and a document description.
func (e *Enhancer) Enhance(ctx context.Context, doc *Document, pages []Page) {
	e.subdivide(ctx, doc.Structure, pages, 0)

	if e.opts.IfAddNodeID {
		WriteNodeIDs(doc.Structure)
	}

	if e.opts.IfAddNodeText || e.opts.IfAddNodeSummary {
		addNodeText(doc.Structure, pages)
	}
	if e.opts.IfAddNodeSummary {
		e.summarize(ctx, doc.Structure)
	}
	if e.opts.IfAddDocDescription {
		doc.Description = e.describe(ctx, doc.Structure)
	}
	if !e.opts.IfAddNodeText {
		removeTextFromTree(doc.Structure)
	}
}

// subdivide replaces oversized leaves with a structure extracted from
// their own pages.
func (e *Enhancer) subdivide(ctx context.Context, nodes []*TreeNode, pages []Page, depth int) {
	if depth >= maxSubdivideDepth {
		return
	}
	for _, n := range nodes {
		if ctx.Err() != nil {
			return
		}
		if len(n.Children) > 0 {
			e.subdivide(ctx, n.Children, pages, depth)
			continue
		}
		if !e.oversized(n, pages) {
			continue
		}

		children, err := e.split(ctx, n, pages)
		if err != nil {
			e.log.Warn("node subdivision failed", "title", n.Title, "error", err)
			continue
		}
		if len(children) == 0 {
			continue
		}
		e.log.Debug("node subdivided", "title", n.Title, "children", len(children))
		n.Children = children
		e.subdivide(ctx, n.Children, pages, depth+1)
	}
}

func (e *Enhancer) oversized(n *TreeNode, pages []Page) bool {
	if n.EndIndex-n.StartIndex+1 <= e.opts.MaxPageNumEachNode {
		return false
	}
	tokens := 0
	for _, p := range nodePages(n, pages) {
		tokens += p.TokenCount
	}
	return tokens >= e.opts.MaxTokenNumEachNode
}

func (e *Enhancer) split(ctx context.Context, n *TreeNode, pages []Page) ([]*TreeNode, error) {
	items, err := e.extractor.ExtractNoTOC(ctx, nodePages(n, pages))
	if err != nil {
		return nil, err
	}
	// The first section found is often the node itself.
	if len(items) > 0 && normalizeTitle(items[0].Title) == normalizeTitle(n.Title) {
		items = items[1:]
	}
	if len(items) == 0 {
		return nil, nil
	}
	for i := range items {
		if p := items[i].PhysicalIndex; p != nil && (*p < n.StartIndex || *p > n.EndIndex) {
			items[i].PhysicalIndex = nil
		}
	}
	return buildForest(items, n.StartIndex, n.EndIndex), nil
}

// nodePages returns the pages in a node's range, clipped to the document.
func nodePages(n *TreeNode, pages []Page) []Page {
	start := max(n.StartIndex, 1)
	end := min(n.EndIndex, len(pages))
	if start > end {
		return nil
	}
	return pages[start-1 : end]
}

// addNodeText populates the Text field for all nodes based on page ranges.
func addNodeText(nodes []*TreeNode, pages []Page) {
	for _, n := range FlattenTree(nodes) {
		var text strings.Builder
		for _, p := range nodePages(n, pages) {
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString(p.Text)
		}
		n.Text = text.String()
	}
}

// summarize fills node summaries. Short sections are their own summary;
// the rest are summarized in one scheduler run. Failed items stay empty.
func (e *Enhancer) summarize(ctx context.Context, nodes []*TreeNode) {
	var queries []Query
	var targets []*TreeNode
	for i, n := range FlattenTree(nodes) {
		if n.Text == "" {
			continue
		}
		if CountTokens(n.Text) < e.opts.SummaryTokenThreshold {
			n.Summary = n.Text
			continue
		}
		targets = append(targets, n)
		queries = append(queries, Query{
			ID:      indexID(i),
			Content: fmt.Sprintf("Section title: %s\n\nSection text:\n%s", n.Title, truncateForPrompt(n.Text, 4000)),
		})
	}

	failed := 0
	for j, a := range e.sched.Run(ctx, SummaryTask, queries) {
		summary, err := DecodeAnswer[string](a)
		if err != nil {
			failed++
			continue
		}
		targets[j].Summary = strings.TrimSpace(summary)
	}
	if failed > 0 {
		e.log.Warn("some summaries failed", "failed", failed, "total", len(queries))
	}
}

type descriptionResponse struct {
	Description string `json:"description"`
}

// describe asks for a one-sentence description of the tree.
func (e *Enhancer) describe(ctx context.Context, nodes []*TreeNode) string {
	prompt := fmt.Sprintf(DocumentDescriptionPrompt, structureToString(nodes))
	response, err := e.oracle.Ask(ctx, oracle.Request{Instruction: prompt})
	if err != nil {
		e.log.Warn("document description failed", "error", err)
		return ""
	}
	result, err := oracle.ExtractJSON[descriptionResponse](response)
	if err != nil {
		e.log.Warn("document description unparseable", "error", err)
		return ""
	}
	return strings.TrimSpace(result.Description)
}

// structureToString renders a tree as an indented title list.
func structureToString(nodes []*TreeNode) string {
	var sb strings.Builder
	var write func([]*TreeNode, int)
	write = func(children []*TreeNode, indent int) {
		for _, node := range children {
			sb.WriteString(strings.Repeat("  ", indent))
			sb.WriteString("- ")
			sb.WriteString(node.Title)
			if node.Summary != "" {
				sb.WriteString(": ")
				sb.WriteString(truncateForPrompt(node.Summary, 100))
			}
			sb.WriteString("\n")
			write(node.Children, indent+1)
		}
	}
	write(nodes, 0)
	return sb.String()
}

// removeTextFromTree removes Text field from all nodes.
func removeTextFromTree(nodes []*TreeNode) {
	for _, n := range FlattenTree(nodes) {
		n.Text = ""
	}
}

// PrintTOC renders a tree as an indented table of contents with page ranges.
func PrintTOC(nodes []*TreeNode, indent int) string {
	var sb strings.Builder
	for _, node := range nodes {
		sb.WriteString(strings.Repeat("  ", indent))
		fmt.Fprintf(&sb, "%s [%d-%d]\n", node.Title, node.StartIndex, node.EndIndex)
		sb.WriteString(PrintTOC(node.Children, indent+1))
	}
	return sb.String()
}
