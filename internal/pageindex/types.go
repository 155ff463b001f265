package pageindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Page is one page of extracted document text. Index is the 1-based position
// in the document.
type Page struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// NewPages builds a 1-based page sequence from raw texts, counting tokens.
func NewPages(texts []string) []Page {
	pages := make([]Page, len(texts))
	for i, t := range texts {
		pages[i] = Page{Index: i + 1, Text: t, TokenCount: CountTokens(t)}
	}
	return pages
}

// TocInfo describes the table of contents found in a document, if any.
// PageIndices are 1-based.
type TocInfo struct {
	Found          bool   `json:"found"`
	PageIndices    []int  `json:"page_indices,omitempty"`
	RawContent     string `json:"raw_content,omitempty"`
	HasPageNumbers bool   `json:"has_page_numbers"`
}

// StartFlag records whether a section begins at the top of its page.
type StartFlag string

const (
	StartYes     StartFlag = "yes"
	StartNo      StartFlag = "no"
	StartUnknown StartFlag = "unknown"
)

// StructureItem is a flat section entry before tree assembly. Structure is a
// dotted index like "2.1.3"; its parent is the index with the last component
// removed. PhysicalIndex is a 1-based page, nil when undetermined.
type StructureItem struct {
	Structure     string    `json:"structure,omitempty"`
	Title         string    `json:"title"`
	Page          *int      `json:"page,omitempty"`
	PhysicalIndex *int      `json:"physical_index"`
	AppearStart   StartFlag `json:"appear_start,omitempty"`
}

// UnmarshalJSON accepts the loose shapes oracles produce: numeric strings,
// "<physical_index_N>" tags and numeric structure indices.
func (s *StructureItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Structure     json.RawMessage `json:"structure"`
		Title         string          `json:"title"`
		Page          json.RawMessage `json:"page"`
		PhysicalIndex json.RawMessage `json:"physical_index"`
		AppearStart   StartFlag       `json:"appear_start"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Title = strings.TrimSpace(raw.Title)
	s.Structure = parseStructure(raw.Structure)
	s.Page = parseLooseInt(raw.Page)
	s.PhysicalIndex = parseLooseInt(raw.PhysicalIndex)
	s.AppearStart = raw.AppearStart
	return nil
}

func parseStructure(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// parseLooseInt reads an int from a JSON number, a numeric string or a
// "<physical_index_N>" tag. Anything else yields nil.
func parseLooseInt(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		n := int(f)
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return ParsePhysicalIndex(s)
}

// ParsePhysicalIndex converts "<physical_index_12>" or "12" into 12.
func ParsePhysicalIndex(s string) *int {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<physical_index_") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<physical_index_"), ">")
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// PhysicalIndexTag renders the page marker used in chunk text.
func PhysicalIndexTag(page int) string {
	return fmt.Sprintf("<physical_index_%d>", page)
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// CloneItems returns a deep copy of items.
func CloneItems(items []StructureItem) []StructureItem {
	if items == nil {
		return nil
	}
	out := make([]StructureItem, len(items))
	for i, it := range items {
		out[i] = it
		if it.Page != nil {
			out[i].Page = IntPtr(*it.Page)
		}
		if it.PhysicalIndex != nil {
			out[i].PhysicalIndex = IntPtr(*it.PhysicalIndex)
		}
	}
	return out
}

// TreeNode is a StructureItem placed in the document tree with its inferred
// page range.
type TreeNode struct {
	Title         string      `json:"title"`
	Structure     string      `json:"structure,omitempty"`
	NodeID        string      `json:"node_id,omitempty"`
	PhysicalIndex *int        `json:"physical_index"`
	AppearStart   StartFlag   `json:"appear_start,omitempty"`
	StartIndex    int         `json:"start_index"`
	EndIndex      int         `json:"end_index"`
	Text          string      `json:"text,omitempty"`
	Summary       string      `json:"summary,omitempty"`
	Children      []*TreeNode `json:"nodes,omitempty"`
}

// Document is a processed document with its metadata and structure.
type Document struct {
	Name        string      `json:"doc_name"`
	Description string      `json:"doc_description,omitempty"`
	Structure   []*TreeNode `json:"structure"`
}

// String returns a JSON representation of the TreeNode for debugging.
func (n *TreeNode) String() string {
	b, _ := json.MarshalIndent(n, "", "  ")
	return string(b)
}

// String returns a JSON representation of the Document.
func (d *Document) String() string {
	b, _ := json.MarshalIndent(d, "", "  ")
	return string(b)
}

// Clone creates a deep copy of the TreeNode.
func (n *TreeNode) Clone() *TreeNode {
	if n == nil {
		return nil
	}
	clone := *n
	if n.PhysicalIndex != nil {
		clone.PhysicalIndex = IntPtr(*n.PhysicalIndex)
	}
	clone.Children = nil
	if n.Children != nil {
		clone.Children = make([]*TreeNode, len(n.Children))
		for i, child := range n.Children {
			clone.Children[i] = child.Clone()
		}
	}
	return &clone
}

// CloneTree deep-copies a forest.
func CloneTree(nodes []*TreeNode) []*TreeNode {
	if nodes == nil {
		return nil
	}
	out := make([]*TreeNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Walk traverses the tree in depth-first order, calling fn for each node.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// LeafNodes returns all leaf nodes (nodes without children).
func (n *TreeNode) LeafNodes() []*TreeNode {
	var leaves []*TreeNode
	n.Walk(func(node *TreeNode) {
		if len(node.Children) == 0 {
			leaves = append(leaves, node)
		}
	})
	return leaves
}

// FlattenTree returns all nodes of a forest in depth-first order.
func FlattenTree(nodes []*TreeNode) []*TreeNode {
	var result []*TreeNode
	for _, n := range nodes {
		n.Walk(func(node *TreeNode) {
			result = append(result, node)
		})
	}
	return result
}

// WriteNodeIDs assigns sequential zero-padded IDs to all nodes in the tree.
func WriteNodeIDs(nodes []*TreeNode) int {
	counter := 0
	for _, node := range FlattenTree(nodes) {
		node.NodeID = fmt.Sprintf("%04d", counter)
		counter++
	}
	return counter
}
