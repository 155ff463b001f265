package pageindex

import "unicode/utf8"

// Oracle prompt templates. Templates with %s placeholders are single calls;
// the *Task constants are batch instructions whose items are supplied by the
// scheduler.

// TOCDetectTask asks whether one page holds a table of contents.
const TOCDetectTask = `You are an expert in analyzing document pages. Each item is the text of one page of a PDF document. Determine whether the page contains a Table of Contents (TOC).

A Table of Contents typically:
- Contains a list of section/chapter titles
- May include page numbers
- Has a hierarchical structure (chapters, sections, subsections)
- Appears near the beginning of a document

Abstracts, summaries, notation lists, figure lists and table lists are not a table of contents.

The result for each item is:
{"toc_detected": "<yes or no>"}`

// PageIndexGivenPrompt asks whether page numbers are included in the TOC.
const PageIndexGivenPrompt = `You are an expert in analyzing document structure. You are given a Table of Contents from a PDF document. Your task is to determine whether page numbers are explicitly given in the Table of Contents.

Table of Contents:
%s

Respond in JSON format:
{
  "thinking": "<your reasoning>",
  "page_index_given_in_toc": "<yes or no>"
}`

// TOCTransformPrompt converts raw TOC text into structured JSON format.
const TOCTransformPrompt = `You are an expert in parsing document structures. You are given a Table of Contents from a PDF document. Your task is to parse it into a structured JSON format.

For each entry, extract:
- structure: The hierarchical index (e.g., "1", "1.1", "1.2.3")
- title: The section title, using the original wording and fixing only spacing
- page: The page number if given (as integer), or null if not present

Table of Contents:
%s

Respond in JSON format:
{
  "table_of_contents": [
    {"structure": "1", "title": "Introduction", "page": 5},
    {"structure": "1.1", "title": "Background", "page": 7}
  ]
}`

// TOCLocatePrompt finds where TOC entries start within a sample of pages.
const TOCLocatePrompt = `Match TOC sections to physical page locations.

TASK: Find where each TOC section starts in the document pages.

RULES:
1. Look for section titles in the document content
2. Use the physical_index tag of the page where the section begins
3. Only add physical_index if the section is clearly found
4. Keep the exact format: "<physical_index_X>"
5. Skip sections not found in the provided pages

TOC:
%s

Document Pages:
%s

Respond in JSON format:
{
  "table_of_contents": [
    {"structure": "1", "title": "Introduction", "physical_index": "<physical_index_5>"}
  ]
}`

// TOCMatchTask finds which TOC entries begin inside one document part.
const TOCMatchTask = `You are given the sections of a document's Table of Contents and, in each item, one part of the document. Pages are delimited by <physical_index_X> tags.

TASK: Find the TOC sections that BEGIN in the item's document part.

RULES:
1. Look for exact or close title matches
2. Match section beginnings, not mere mentions
3. Report the physical_index tag of the page where the section begins, in the exact format "<physical_index_X>"
4. Omit sections that do not begin in this part

TOC sections:
%s

The result for each item is a list:
[{"structure": "1.2", "title": "Section title", "physical_index": "<physical_index_X>"}]`

// GenerateInitPrompt proposes the first part of a structure from content.
const GenerateInitPrompt = `Extract document structure from content.

TASK: Identify sections, subsections, and their hierarchy.

RULES:
1. Detect headings, titles, and section breaks
2. Assign hierarchical numbers (1, 1.1, 1.2, 2, 2.1, etc.)
3. Use original titles, fix only spacing issues
4. Find the physical_index where each section starts: "<physical_index_X>"
5. Include all significant structural elements
6. Skip headers, footers, page numbers

Document Content:
%s

Respond with a JSON array:
[
  {"structure": "1", "title": "Introduction", "physical_index": "<physical_index_1>"},
  {"structure": "1.1", "title": "Overview", "physical_index": "<physical_index_2>"}
]`

// GenerateContinuePrompt extends an existing structure with a further part.
const GenerateContinuePrompt = `Extract NEW sections from content to extend an existing structure.

TASK: Find sections in the current content that continue the document structure.

RULES:
1. Continue numbering from the existing structure (check the last section number)
2. Only return NEW sections found in the current content
3. Maintain hierarchical consistency with the existing structure
4. Use original titles, fix only spacing
5. Find the physical_index where each NEW section starts: "<physical_index_X>"
6. Do not duplicate existing sections

EXISTING STRUCTURE (last items):
%s

Current Content:
%s

Respond with a JSON array of the new sections only.`

// VerifyTitleTask checks whether a title appears on its claimed page.
const VerifyTitleTask = `You are an expert in verifying document structure. Each item gives a section title and the text of the page where the section is claimed to start.

Determine whether the section title appears on this page. The title may have slight variations in spacing or formatting.

The result for each item is:
{"answer": "<yes or no>"}`

// RepairLocateTask relocates a section within a window of pages.
const RepairLocateTask = `You are an expert in analyzing documents. Each item gives a section title and a window of document pages delimited by <physical_index_X> tags.

Find the page where the section starts. If it does not start in the window, use null.

The result for each item is:
{"physical_index": "<physical_index_X>"}`

// StartCheckTask determines if a section starts at the beginning of a page.
const StartCheckTask = `You are an expert in analyzing document layout. Each item gives a section title and the beginning of a page.

Determine whether the section starts at the very beginning of the page, that is, whether no other content precedes the title on this page.

The result for each item is:
{"start_begin": "<yes or no>"}`

// SummaryTask generates a summary for a document section.
const SummaryTask = `You are an expert in summarizing documents. Each item is one section of a document. Generate a description of the main points covered in the section, in 2-3 sentences.

The result for each item is the summary as a JSON string.`

// DocumentDescriptionPrompt generates a one-sentence description for the entire document.
const DocumentDescriptionPrompt = `You are an expert in generating document descriptions. You are given the structure of a document. Generate a one-sentence description that distinguishes this document from others.

Document Structure:
%s

Respond in JSON format:
{"description": "<one sentence>"}`

// truncateForPrompt shortens text to at most maxLen bytes, cutting on a
// rune boundary.
func truncateForPrompt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n...[truncated]"
}
