// Package oracle is the narrow request/response boundary to the external
// text-understanding service. Everything pagetree asks of a language model
// goes through the Oracle interface.
package oracle

import (
	"context"
	"strings"
)

// Request is one question for the oracle. Instruction tells the service what
// to do; Content carries the document material it operates on.
type Request struct {
	Instruction string
	Content     string
}

// Prompt renders the request as a single prompt string.
func (r Request) Prompt() string {
	if r.Content == "" {
		return r.Instruction
	}
	var b strings.Builder
	b.WriteString(r.Instruction)
	b.WriteString("\n\n")
	b.WriteString(r.Content)
	return b.String()
}

// Oracle answers a request with text that is expected to contain a JSON
// document, possibly surrounded by prose or code fences.
type Oracle interface {
	// Ask sends a request and returns the raw response text.
	Ask(ctx context.Context, req Request) (string, error)

	// Model returns the model identifier being used.
	Model() string
}
