package pageindex

import (
	"fmt"
	"strings"
)

// PrefaceTitle is the title of the synthesized leading section.
const PrefaceTitle = "Preface"

// AddPrefaceIfNeeded prepends a root-level "Preface" item at page 1 when the
// list is empty or its first item does not start on page 1.
func AddPrefaceIfNeeded(items []StructureItem) []StructureItem {
	if len(items) > 0 && items[0].PhysicalIndex != nil && *items[0].PhysicalIndex <= 1 {
		return items
	}
	preface := StructureItem{
		Structure:     "0",
		Title:         PrefaceTitle,
		PhysicalIndex: IntPtr(1),
		AppearStart:   StartYes,
	}
	return append([]StructureItem{preface}, items...)
}

// pageBounds is the inferred range of one flat item.
type pageBounds struct {
	start, end int
}

// inferBounds computes start and end pages for every item within
// [first, last]. Starts never move backwards: an unresolved or out-of-order
// index inherits the previous start. An item ends one page before its
// successor when the successor starts at the top of its page, on the
// successor's page otherwise, and on its own start page when the
// successor's location is unknown. The last item runs to last.
func inferBounds(items []StructureItem, first, last int) []pageBounds {
	bounds := make([]pageBounds, len(items))
	prevStart := first
	for i, it := range items {
		start := prevStart
		if it.PhysicalIndex != nil && *it.PhysicalIndex > start {
			start = min(*it.PhysicalIndex, max(last, first))
		}
		bounds[i].start = start
		prevStart = start
	}

	for i := range items {
		start := bounds[i].start
		end := start
		if i == len(items)-1 {
			end = last
		} else if next := items[i+1]; next.PhysicalIndex != nil {
			end = bounds[i+1].start
			if next.AppearStart == StartYes {
				end--
			}
		}
		bounds[i].end = max(end, start)
	}
	return bounds
}

// AssembleTree turns a flat item list into a forest with page ranges. A
// preface is synthesized when needed. Each item's parent is the item whose
// structure index is its own with the last component removed, looked up
// along the path of open ancestors; items without such a parent become
// roots. No item is dropped. A parent's range is widened to cover its
// children.
func AssembleTree(items []StructureItem, totalPages int) []*TreeNode {
	return buildForest(AddPrefaceIfNeeded(CloneItems(items)), 1, max(totalPages, 1))
}

// buildForest nests items whose ranges are bounded by [first, last].
func buildForest(items []StructureItem, first, last int) []*TreeNode {
	bounds := inferBounds(items, first, last)

	var roots, path []*TreeNode
	for i, it := range items {
		node := &TreeNode{
			Title:         it.Title,
			Structure:     it.Structure,
			PhysicalIndex: it.PhysicalIndex,
			AppearStart:   it.AppearStart,
			StartIndex:    bounds[i].start,
			EndIndex:      bounds[i].end,
		}

		// A parent closed by a later sibling is not reopened: its range ends
		// before this item starts, so nesting here would either leave the
		// child outside its parent or, once widened, overlap the siblings.
		parent := -1
		if it.Structure != "" && it.Structure != "0" {
			want := getParentStructure(it.Structure)
			for j := len(path) - 1; j >= 0 && want != ""; j-- {
				if path[j].Structure == want {
					parent = j
					break
				}
			}
		}

		if parent < 0 {
			roots = append(roots, node)
			path = append(path[:0], node)
			continue
		}
		path[parent].Children = append(path[parent].Children, node)
		path = append(path[:parent+1], node)
	}

	for _, r := range roots {
		widen(r)
	}
	return roots
}

func widen(n *TreeNode) int {
	for _, c := range n.Children {
		if end := widen(c); end > n.EndIndex {
			n.EndIndex = end
		}
	}
	return n.EndIndex
}

// getParentStructure returns the parent structure code.
// For example, "1.2.3" returns "1.2", and "1" returns "".
func getParentStructure(structure string) string {
	i := strings.LastIndex(structure, ".")
	if i < 0 {
		return ""
	}
	return structure[:i]
}

// CheckInvariants verifies the structural guarantees of an assembled
// forest: ranges are ordered, children sit inside their parent, siblings
// do not overlap beyond a shared boundary page, and the node count matches
// want. A violation is a programming defect.
func CheckInvariants(roots []*TreeNode, want int) error {
	got := 0
	var check func(nodes []*TreeNode, lo, hi int) error
	check = func(nodes []*TreeNode, lo, hi int) error {
		for i, n := range nodes {
			got++
			if n.EndIndex < n.StartIndex {
				return &AssemblyInvariantViolation{Detail: fmt.Sprintf("%q ends at %d before it starts at %d", n.Title, n.EndIndex, n.StartIndex)}
			}
			if n.StartIndex < lo || n.EndIndex > hi {
				return &AssemblyInvariantViolation{Detail: fmt.Sprintf("%q [%d,%d] escapes parent range [%d,%d]", n.Title, n.StartIndex, n.EndIndex, lo, hi)}
			}
			if i > 0 && n.StartIndex < nodes[i-1].EndIndex {
				return &AssemblyInvariantViolation{Detail: fmt.Sprintf("%q overlaps preceding sibling %q", n.Title, nodes[i-1].Title)}
			}
			if err := check(n.Children, n.StartIndex, n.EndIndex); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(roots, 1, int(^uint(0)>>1)); err != nil {
		return err
	}
	if got != want {
		return &AssemblyInvariantViolation{Detail: fmt.Sprintf("tree holds %d nodes, want %d", got, want)}
	}
	return nil
}

// CountItems returns how many nodes AssembleTree will produce for items.
func CountItems(items []StructureItem) int {
	return len(AddPrefaceIfNeeded(items))
}
