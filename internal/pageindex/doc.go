// Package pageindex builds hierarchical section trees from paged documents
// using an LLM oracle to read and reason about page text.
//
// # Overview
//
// A document is a sequence of 1-based pages. Its structure is extracted as a
// flat list of items, each with a dotted structure index like "2.1.3", a
// title and the physical page where the section begins. The flat list is
// verified against the page text, repaired where wrong and finally assembled
// into a forest whose nodes carry inclusive page ranges.
//
// # Strategies
//
//   - toc_with_pages: the table of contents lists page numbers. Claimed
//     numbers are calibrated against physical pages with a modal offset.
//   - toc_no_pages: the table of contents lists titles only. Every entry is
//     located by matching it against chunks of the document.
//   - no_toc: the structure is inferred from content, chunk by chunk, each
//     chunk continuing the structure built so far.
//
// # Components
//
//   - tokens.go: token counting and the overlapping page chunker
//   - batch.go: the scheduler that packs independent oracle queries into
//     token-bounded batches and degrades to single calls on failure
//   - toc.go: table of contents detection and parsing
//   - extract.go: the three extraction strategies
//   - verify.go: sampled verification, windowed repair and start checks
//   - tree.go: tree assembly and its invariants
//   - enhance.go: subdivision, node ids, text, summaries and description
//
// # Usage
//
//	opts := pageindex.DefaultOptions()
//	detector := pageindex.NewTOCDetector(o, opts, log)
//	toc, err := detector.DetectTOC(ctx, pages)
//	items, err := pageindex.NewExtractor(o, opts, log).Extract(ctx, pageindex.SelectStrategy(toc), pages, toc)
//	items, report := pageindex.NewVerifier(o, opts, log).Verify(ctx, items, pages)
//	roots := pageindex.AssembleTree(items, len(pages))
package pageindex
