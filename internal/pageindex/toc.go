package pageindex

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/itsmostafa/pagetree/internal/logger"
	"github.com/itsmostafa/pagetree/internal/oracle"
)

var (
	dotLeaders       = regexp.MustCompile(`\.{5,}`)
	spacedDotLeaders = regexp.MustCompile(`(?:\. ){5,}\.?`)
)

var tocSchema = oracle.MustCompileSchema("table_of_contents.json", `{
	"type": "object",
	"required": ["table_of_contents"],
	"properties": {
		"table_of_contents": {
			"type": "array",
			"items": {"type": "object", "required": ["title"]}
		}
	}
}`)

// TOCDetector finds the table of contents of a document and parses it.
type TOCDetector struct {
	oracle oracle.Oracle
	sched  *Scheduler
	opts   Options
	log    *logger.Logger
}

// NewTOCDetector creates a new TOC detector with the given oracle.
func NewTOCDetector(o oracle.Oracle, opts Options, log *logger.Logger) *TOCDetector {
	log = logger.OrNop(log)
	return &TOCDetector{
		oracle: o,
		sched:  NewScheduler(o, opts.BatchTokenLimit, opts.MaxConcurrency, log),
		opts:   opts,
		log:    log,
	}
}

type tocDetectResult struct {
	TOCDetected string `json:"toc_detected"`
}

type pageIndexResponse struct {
	PageIndexGivenTOC string `json:"page_index_given_in_toc"`
}

// DetectTOC scans the leading pages of a document for a table of contents.
// Every candidate page is classified in one fan-out; the TOC is the first
// run of consecutive yes answers. Oracle failures count as no.
func (d *TOCDetector) DetectTOC(ctx context.Context, pages []Page) (TocInfo, error) {
	limit := min(d.opts.TOCCheckPageNum, len(pages))
	if limit <= 0 {
		return TocInfo{}, nil
	}

	queries := make([]Query, limit)
	for i := 0; i < limit; i++ {
		queries[i] = Query{ID: indexID(pages[i].Index), Content: truncateForPrompt(pages[i].Text, 3000)}
	}
	answers := d.sched.Run(ctx, TOCDetectTask, queries)
	if err := ctx.Err(); err != nil {
		return TocInfo{}, err
	}

	var tocPages []int
	var texts []string
	for i, a := range answers {
		res, err := DecodeAnswer[tocDetectResult](a)
		if err != nil {
			d.log.Debug("toc page check failed", "page", pages[i].Index, "error", err)
		}
		if err == nil && yes(res.TOCDetected) {
			tocPages = append(tocPages, pages[i].Index)
			texts = append(texts, pages[i].Text)
		} else if len(tocPages) > 0 {
			break
		}
	}

	if len(tocPages) == 0 {
		return TocInfo{}, nil
	}

	content := CollapseDotLeaders(strings.Join(texts, "\n"))
	info := TocInfo{
		Found:          true,
		PageIndices:    tocPages,
		RawContent:     content,
		HasPageNumbers: d.hasPageNumbers(ctx, content),
	}
	d.log.Info("table of contents detected", "pages", tocPages, "has_page_numbers", info.HasPageNumbers)
	return info, nil
}

// CollapseDotLeaders replaces runs of leader dots with ": ".
func CollapseDotLeaders(s string) string {
	s = dotLeaders.ReplaceAllString(s, ": ")
	return spacedDotLeaders.ReplaceAllString(s, ": ")
}

// hasPageNumbers asks whether the TOC lists page numbers. Failure means no.
func (d *TOCDetector) hasPageNumbers(ctx context.Context, tocContent string) bool {
	prompt := fmt.Sprintf(PageIndexGivenPrompt, truncateForPrompt(tocContent, 4000))

	response, err := d.oracle.Ask(ctx, oracle.Request{Instruction: prompt})
	if err != nil {
		d.log.Warn("page number check failed", "error", err)
		return false
	}

	result, err := oracle.ExtractJSON[pageIndexResponse](response)
	if err != nil {
		d.log.Warn("page number check unparseable", "error", err)
		return false
	}
	return yes(result.PageIndexGivenTOC)
}

type tocTransformResponse struct {
	TableOfContents []StructureItem `json:"table_of_contents"`
}

// TransformTOC converts raw TOC text into structured items. Locations are
// left unresolved; only claimed page numbers are kept.
func (d *TOCDetector) TransformTOC(ctx context.Context, tocContent string) ([]StructureItem, error) {
	prompt := fmt.Sprintf(TOCTransformPrompt, tocContent)

	response, err := d.oracle.Ask(ctx, oracle.Request{Instruction: prompt})
	if err != nil {
		return nil, &OracleError{Op: "transform toc", Err: err}
	}

	result, err := oracle.DecodeValidated[tocTransformResponse](response, tocSchema)
	if err != nil {
		items, arrErr := oracle.ExtractJSON[[]StructureItem](response)
		if arrErr != nil {
			return nil, &OracleError{Op: "transform toc", Err: err}
		}
		result.TableOfContents = items
	}

	items := result.TableOfContents
	for i := range items {
		items[i].PhysicalIndex = nil
		items[i].AppearStart = ""
	}
	return UniqueStructures(items), nil
}
