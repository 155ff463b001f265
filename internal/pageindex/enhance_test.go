package pageindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/itsmostafa/pagetree/internal/oracle"
)

func TestEnhanceAdditions(t *testing.T) {
	pages := textPages(
		"Alpha "+strings.Repeat("long section text ", 30),
		strings.Repeat("more alpha text ", 30),
		"Bravo short",
	)
	doc := &Document{Name: "doc", Structure: []*TreeNode{
		{Title: "Alpha", StartIndex: 1, EndIndex: 2},
		{Title: "Bravo", StartIndex: 3, EndIndex: 3},
	}}

	o := oracle.NewScripted().
		OnFunc(matchSummary, batchAnswer(func(id, content string) any {
			return "Summary of " + fieldAfter(content, "Section title")
		})).
		OnFunc(matchDescription, func(req oracle.Request) (string, error) {
			if !strings.Contains(req.Instruction, "- Alpha: Summary of Alpha") {
				return "", fmt.Errorf("structure missing from prompt")
			}
			return `{"description": "A two-section test document."}`, nil
		})

	opts := testOptions()
	opts.IfAddNodeText = true
	opts.IfAddNodeSummary = true
	opts.IfAddDocDescription = true
	NewEnhancer(o, opts, nil).Enhance(context.Background(), doc, pages)

	alpha, bravo := doc.Structure[0], doc.Structure[1]
	if alpha.NodeID != "0000" || bravo.NodeID != "0001" {
		t.Errorf("node ids = %q, %q", alpha.NodeID, bravo.NodeID)
	}
	if alpha.Text != pages[0].Text+"\n\n"+pages[1].Text {
		t.Error("Alpha text should join its pages")
	}
	if alpha.Summary != "Summary of Alpha" {
		t.Errorf("Alpha summary = %q", alpha.Summary)
	}
	if bravo.Summary != "Bravo short" {
		t.Errorf("short sections should be their own summary, got %q", bravo.Summary)
	}
	if doc.Description != "A two-section test document." {
		t.Errorf("Description = %q", doc.Description)
	}
}

func TestEnhanceSummaryWithoutText(t *testing.T) {
	pages := textPages("Alpha body")
	doc := &Document{Structure: []*TreeNode{{Title: "Alpha", StartIndex: 1, EndIndex: 1}}}

	opts := testOptions()
	opts.IfAddNodeSummary = true
	opts.IfAddNodeID = false
	NewEnhancer(oracle.NewScripted(), opts, nil).Enhance(context.Background(), doc, pages)

	n := doc.Structure[0]
	if n.Text != "" {
		t.Error("text should be removed when not requested")
	}
	if n.Summary != "Alpha body" {
		t.Errorf("Summary = %q", n.Summary)
	}
	if n.NodeID != "" {
		t.Errorf("NodeID = %q, want none", n.NodeID)
	}
}

func TestEnhanceFailuresAreNotFatal(t *testing.T) {
	pages := textPages(strings.Repeat("word ", 400))
	doc := &Document{Structure: []*TreeNode{{Title: "Alpha", StartIndex: 1, EndIndex: 1}}}
	o := oracle.NewScripted().
		OnError(matchSummary, errors.New("unavailable")).
		OnError(matchDescription, errors.New("unavailable"))

	opts := testOptions()
	opts.IfAddNodeSummary = true
	opts.IfAddDocDescription = true
	NewEnhancer(o, opts, nil).Enhance(context.Background(), doc, pages)

	if doc.Structure[0].Summary != "" || doc.Description != "" {
		t.Errorf("failed enhancements should leave fields empty: %+v", doc)
	}
}

func TestEnhanceSubdividesLargeLeaves(t *testing.T) {
	pages := longPages(12, func(i int) string { return fmt.Sprintf("Page %d", i) })
	doc := &Document{Structure: []*TreeNode{{Title: "Big", Structure: "1", StartIndex: 1, EndIndex: 12}}}

	o := oracle.NewScripted().
		On(matchInit, `[
			{"structure": "1", "title": "Big", "physical_index": 1},
			{"structure": "1.1", "title": "Part A", "physical_index": 1},
			{"structure": "1.2", "title": "Part B", "physical_index": 7}
		]`).
		On(matchContinue, `[]`)

	opts := testOptions()
	opts.MaxTokenNumEachNode = 200
	NewEnhancer(o, opts, nil).Enhance(context.Background(), doc, pages)

	big := doc.Structure[0]
	if len(big.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(big.Children))
	}
	a, b := big.Children[0], big.Children[1]
	if a.Title != "Part A" || a.StartIndex != 1 || a.EndIndex != 7 {
		t.Errorf("Part A = %s [%d,%d]", a.Title, a.StartIndex, a.EndIndex)
	}
	if b.Title != "Part B" || b.StartIndex != 7 || b.EndIndex != 12 {
		t.Errorf("Part B = %s [%d,%d]", b.Title, b.StartIndex, b.EndIndex)
	}
	if b.NodeID != "0002" {
		t.Errorf("subdivided nodes should get ids, got %q", b.NodeID)
	}
	if err := CheckInvariants(doc.Structure, 3); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

func TestEnhanceSkipsSubdivisionOnEmptyResult(t *testing.T) {
	pages := longPages(12, func(i int) string { return fmt.Sprintf("Page %d", i) })
	doc := &Document{Structure: []*TreeNode{{Title: "Big", StartIndex: 1, EndIndex: 12}}}
	o := oracle.NewScripted().OnError(matchInit, errors.New("unavailable")).On(matchContinue, `[]`)

	opts := testOptions()
	opts.MaxTokenNumEachNode = 200
	NewEnhancer(o, opts, nil).Enhance(context.Background(), doc, pages)

	if len(doc.Structure[0].Children) != 0 {
		t.Error("node should stay a leaf")
	}
	if doc.Structure[0].EndIndex != 12 {
		t.Error("node range changed")
	}
}

func TestEnhanceSmallLeavesNotSubdivided(t *testing.T) {
	pages := longPages(12, func(i int) string { return fmt.Sprintf("Page %d", i) })
	doc := &Document{Structure: []*TreeNode{{Title: "Big", StartIndex: 1, EndIndex: 12}}}
	o := oracle.NewScripted()

	// Wide but below the token threshold.
	NewEnhancer(o, testOptions(), nil).Enhance(context.Background(), doc, pages)
	if len(o.Calls()) != 0 {
		t.Errorf("expected no oracle calls, got %d", len(o.Calls()))
	}
}

func TestPrintTOC(t *testing.T) {
	nodes := []*TreeNode{
		{Title: "Chapter 1", StartIndex: 1, EndIndex: 4, Children: []*TreeNode{{Title: "Section 1.1", StartIndex: 2, EndIndex: 4}}},
		{Title: "Chapter 2", StartIndex: 5, EndIndex: 9},
	}
	want := "Chapter 1 [1-4]\n  Section 1.1 [2-4]\nChapter 2 [5-9]\n"
	if got := PrintTOC(nodes, 0); got != want {
		t.Errorf("PrintTOC =\n%s\nwant\n%s", got, want)
	}
}
