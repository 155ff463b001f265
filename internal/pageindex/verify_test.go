package pageindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/itsmostafa/pagetree/internal/oracle"
)

// titledPages returns n pages; pages listed in titles carry that title.
func titledPages(n int, titles map[int]string) []Page {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("Page %d body text", i+1)
		if t, ok := titles[i+1]; ok {
			texts[i] = t + "\n" + texts[i]
		}
	}
	return textPages(texts...)
}

func TestVerifyAccurateInputIsUntouched(t *testing.T) {
	pages := titledPages(10, map[int]string{2: "Alpha", 5: "Bravo", 9: "Charlie"})
	items := []StructureItem{
		item("1", "Alpha", 2, ""),
		item("2", "bravo", 5, ""),
		item("3", "Charlie", 9, ""),
	}
	o := oracle.NewScripted()

	got, report := NewVerifier(o, testOptions(), nil).Verify(context.Background(), items, pages)
	if report.Accuracy != 1 || report.PostAccuracy != 1 || report.Confidence != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.RepairRounds != 0 {
		t.Errorf("accurate input ran %d repair rounds", report.RepairRounds)
	}
	if len(o.Calls()) != 0 {
		t.Errorf("verbatim titles should not need the oracle, got %d calls", len(o.Calls()))
	}
	for i := range items {
		if !equalIntPtr(got[i].PhysicalIndex, items[i].PhysicalIndex) {
			t.Errorf("%s moved to %v", got[i].Title, got[i].PhysicalIndex)
		}
	}
}

func TestVerifyClampsImpossibleIndices(t *testing.T) {
	pages := titledPages(5, map[int]string{1: "Alpha"})
	items := []StructureItem{
		item("1", "Alpha", 1, ""),
		{Structure: "2", Title: "Beyond", PhysicalIndex: IntPtr(50)},
		{Structure: "3", Title: "Negative", PhysicalIndex: IntPtr(-2)},
	}

	got, report := NewVerifier(oracle.NewScripted(), testOptions(), nil).Verify(context.Background(), items, pages)
	if report.Clamped != 2 {
		t.Errorf("Clamped = %d, want 2", report.Clamped)
	}
	if len(got) != 3 {
		t.Fatalf("verification dropped items: %d left", len(got))
	}
	if got[1].PhysicalIndex != nil || got[2].PhysicalIndex != nil {
		t.Error("out-of-range indices should become nil")
	}
	if report.Checked != 1 || report.Accuracy != 1 {
		t.Errorf("only the valid item should be checked: %+v", report)
	}
	if *items[1].PhysicalIndex != 50 {
		t.Error("Verify mutated its input")
	}
}

func TestVerifyRepairsWithinWindow(t *testing.T) {
	truth := map[string]int{"Alpha": 3, "Bravo": 8, "Charlie": 14, "Echo": 18}
	titles := map[int]string{}
	for title, page := range truth {
		titles[page] = title
	}
	pages := titledPages(20, titles)

	items := []StructureItem{
		item("1", "Alpha", 5, ""),
		item("2", "Bravo", 6, ""),
		item("3", "Charlie", 12, ""),
		item("4", "Delta", 10, ""),
		item("5", "Echo", 2, ""),
	}

	o := oracle.NewScripted().
		OnFunc(matchVerify, batchAnswer(func(id, content string) any {
			return map[string]string{"answer": "no"}
		})).
		OnFunc(matchRepair, batchAnswer(func(id, content string) any {
			page, ok := truth[fieldAfter(content, "Section title")]
			if !ok {
				return map[string]any{"physical_index": nil}
			}
			return map[string]string{"physical_index": PhysicalIndexTag(page)}
		}))

	opts := testOptions()
	opts.RepairWindow = 2
	got, report := NewVerifier(o, opts, nil).Verify(context.Background(), items, pages)

	want := map[string]*int{"Alpha": IntPtr(3), "Bravo": IntPtr(8), "Charlie": IntPtr(14), "Delta": nil, "Echo": nil}
	for _, it := range got {
		if !equalIntPtr(it.PhysicalIndex, want[it.Title]) {
			t.Errorf("%s = %v, want %v", it.Title, it.PhysicalIndex, want[it.Title])
		}
	}
	if report.Accuracy != 0 {
		t.Errorf("Accuracy = %v, want 0", report.Accuracy)
	}
	if report.Repaired != 3 || report.Unresolved != 2 {
		t.Errorf("Repaired/Unresolved = %d/%d, want 3/2", report.Repaired, report.Unresolved)
	}
	if report.RepairRounds != opts.MaxFixAttempts {
		t.Errorf("RepairRounds = %d, want %d", report.RepairRounds, opts.MaxFixAttempts)
	}
	if report.PostAccuracy != 0.6 || report.Confidence != 0.3 {
		t.Errorf("PostAccuracy/Confidence = %v/%v, want 0.6/0.3", report.PostAccuracy, report.Confidence)
	}
	if report.BelowThreshold {
		t.Error("post accuracy meets the threshold")
	}
}

func TestVerifyOracleErrorsCountAsIncorrect(t *testing.T) {
	pages := titledPages(6, nil)
	items := []StructureItem{item("1", "Alpha", 2, ""), item("2", "Bravo", 4, "")}
	o := oracle.NewScripted().
		OnError(matchVerify, errors.New("unavailable")).
		OnError(matchRepair, errors.New("unavailable"))

	got, report := NewVerifier(o, testOptions(), nil).Verify(context.Background(), items, pages)
	if report.Correct != 0 || report.Accuracy != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if !report.BelowThreshold {
		t.Error("expected BelowThreshold")
	}
	for _, it := range got {
		if it.PhysicalIndex != nil {
			t.Errorf("%s should be unresolved", it.Title)
		}
	}
}

func TestVerifyNoCheckableItems(t *testing.T) {
	items := []StructureItem{{Title: "Floating"}}
	_, report := NewVerifier(oracle.NewScripted(), testOptions(), nil).Verify(context.Background(), items, titledPages(3, nil))
	if report.Checked != 0 || report.Accuracy != 0 || report.RepairRounds != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.BelowThreshold {
		t.Error("an unchecked sample should not be reported below threshold")
	}
}

func TestVerifierSample(t *testing.T) {
	opts := testOptions()
	opts.VerifySampleSize = 5
	v := NewVerifier(oracle.NewScripted(), opts, nil)

	first := v.sample(20)
	if len(first) != 5 {
		t.Fatalf("sample size = %d, want 5", len(first))
	}
	if !slices.IsSorted(first) {
		t.Errorf("sample not sorted: %v", first)
	}
	if !slices.Equal(first, v.sample(20)) {
		t.Error("fixed seed should give the same sample")
	}
	for i := 1; i < len(first); i++ {
		if first[i] == first[i-1] {
			t.Errorf("duplicate index in sample %v", first)
		}
	}
	if got := v.sample(3); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("small lists should be checked whole, got %v", got)
	}
}

func TestCheckSectionStarts(t *testing.T) {
	filler := strings.Repeat("preceding text ", 20)
	pages := textPages(
		"Alpha\nbody",
		filler+"Bravo\nbody",
		filler+"Charlie\nbody",
	)
	items := []StructureItem{
		item("1", "Alpha", 1, ""),
		item("2", "Bravo", 2, ""),
		item("3", "Charlie", 3, ""),
		item("4", "Delta", 0, ""),
		{Structure: "5", Title: "Echo", PhysicalIndex: IntPtr(9)},
	}

	o := oracle.NewScripted().OnFunc(matchStart, batchAnswer(func(id, content string) any {
		if fieldAfter(content, "Section title") == "Charlie" {
			return map[string]string{"start_begin": "yes"}
		}
		return map[string]string{"start_begin": "no"}
	}))

	got := NewVerifier(o, testOptions(), nil).CheckSectionStarts(context.Background(), items, pages)
	want := []StartFlag{StartYes, StartNo, StartYes, StartUnknown, StartUnknown}
	for i, w := range want {
		if got[i].AppearStart != w {
			t.Errorf("%s AppearStart = %q, want %q", got[i].Title, got[i].AppearStart, w)
		}
	}
	if o.CallsMatching(matchStart) != 1 {
		t.Errorf("expected one batched start check, got %d", o.CallsMatching(matchStart))
	}
}

func TestCheckSectionStartsOracleFailure(t *testing.T) {
	pages := textPages(strings.Repeat("x ", 200) + "Bravo")
	o := oracle.NewScripted().OnError(matchStart, errors.New("unavailable"))
	got := NewVerifier(o, testOptions(), nil).CheckSectionStarts(context.Background(), []StructureItem{item("1", "Bravo", 1, "")}, pages)
	if got[0].AppearStart != StartNo {
		t.Errorf("AppearStart = %q, want no", got[0].AppearStart)
	}
}

func TestContainsFuzzy(t *testing.T) {
	tests := []struct {
		page, title string
		want        bool
	}{
		{"Chapter 1\n  Introduction", "chapter 1 introduction", true},
		{"CHAPTER ONE", "chapter one", true},
		{"Chapter 2", "Chapter 1", false},
		{"anything", "   ", false},
	}
	for _, tt := range tests {
		if got := containsFuzzy(tt.page, tt.title); got != tt.want {
			t.Errorf("containsFuzzy(%q, %q) = %v, want %v", tt.page, tt.title, got, tt.want)
		}
	}
}
