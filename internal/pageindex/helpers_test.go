package pageindex

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/itsmostafa/pagetree/internal/oracle"
)

// Substrings that identify each prompt in scripted oracle rules.
const (
	matchTOCDetect   = "Determine whether the page contains a Table of Contents"
	matchPageNumbers = "determine whether page numbers are explicitly given"
	matchTransform   = "parse it into a structured JSON format"
	matchLocate      = "Match TOC sections to physical page locations"
	matchTOCMatch    = "Find the TOC sections that BEGIN"
	matchInit        = "Extract document structure from content"
	matchContinue    = "Extract NEW sections"
	matchVerify      = "Determine whether the section title appears on this page"
	matchRepair      = "Find the page where the section starts"
	matchStart       = "Determine whether the section starts at the very beginning"
	matchSummary     = "Generate a description of the main points"
	matchDescription = "generating document descriptions"
)

// batchAnswer builds a scripted reply for scheduler batches. fn is called
// for every item; a nil result omits the item from the response.
func batchAnswer(fn func(id, content string) any) func(oracle.Request) (string, error) {
	return func(req oracle.Request) (string, error) {
		var items []batchItem
		if err := json.Unmarshal([]byte(strings.TrimPrefix(req.Content, "Items:\n")), &items); err != nil {
			return "", err
		}
		type result struct {
			ID     string `json:"id"`
			Result any    `json:"result"`
		}
		results := []result{}
		for _, it := range items {
			if r := fn(it.ID, it.Content); r != nil {
				results = append(results, result{ID: it.ID, Result: r})
			}
		}
		b, err := json.Marshal(map[string]any{"results": results})
		return string(b), err
	}
}

// batchSize returns how many items a scheduler request carries.
func batchSize(req oracle.Request) int {
	var items []batchItem
	_ = json.Unmarshal([]byte(strings.TrimPrefix(req.Content, "Items:\n")), &items)
	return len(items)
}

var tagPattern = regexp.MustCompile(`<physical_index_(\d+)>`)

// taggedPages returns the distinct page indices marked in text, in order.
func taggedPages(text string) []int {
	var out []int
	seen := map[int]bool{}
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(m[1])
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// fieldAfter returns the line following "label: " in a query's content.
func fieldAfter(content, label string) string {
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(line, label+": "); ok {
			return v
		}
	}
	return ""
}

func textPages(texts ...string) []Page {
	return NewPages(texts)
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Seed = 1
	opts.MaxConcurrency = 4
	return opts
}
