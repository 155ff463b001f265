package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)
	pythonNone    = regexp.MustCompile(`\bNone\b`)
)

// ExtractJSON extracts and parses JSON from an oracle response. It handles
// code fences, surrounding prose, Python-style None and trailing commas.
func ExtractJSON[T any](content string) (T, error) {
	var result T
	raw, err := ExtractRaw(content)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to parse JSON: %w (content: %s)", err, truncate(string(raw), 200))
	}
	return result, nil
}

// ExtractRaw returns the first candidate in content that parses as JSON.
func ExtractRaw(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response")
	}

	candidates := []string{content, stripCodeFences(content)}
	candidates = append(candidates, extractJSONCandidate(stripCodeFences(content)))

	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, fixed := range []string{c, repair(c)} {
			var probe any
			if err := json.Unmarshal([]byte(fixed), &probe); err != nil {
				lastErr = err
				continue
			}
			return json.RawMessage(fixed), nil
		}
	}
	return nil, fmt.Errorf("no JSON document in response: %w (content: %s)", lastErr, truncate(content, 200))
}

func repair(s string) string {
	s = pythonNone.ReplaceAllString(s, "null")
	return trailingComma.ReplaceAllString(s, "$1")
}

func stripCodeFences(content string) string {
	if start := strings.Index(content, "```json"); start != -1 {
		start += len("```json")
		if end := strings.LastIndex(content, "```"); end > start {
			return strings.TrimSpace(content[start:end])
		}
	} else if start := strings.Index(content, "```"); start != -1 {
		start += 3
		if end := strings.LastIndex(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	return content
}

// extractJSONCandidate returns the span from the first opening brace or
// bracket to the last matching closer.
func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start, closeChar := -1, ""
	switch {
	case objectStart >= 0 && (arrayStart < 0 || objectStart < arrayStart):
		start, closeChar = objectStart, "}"
	case arrayStart >= 0:
		start, closeChar = arrayStart, "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// Schema is a compiled JSON schema used to validate decoded responses.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// MustCompileSchema compiles src and panics on failure. Schemas are package
// constants, so a failure is a programming error.
func MustCompileSchema(name, src string) *Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("load schema %s: %v", name, err))
	}
	s, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// DecodeValidated extracts JSON from content, validates it against schema
// and decodes it into T.
func DecodeValidated[T any](content string, schema *Schema) (T, error) {
	var result T
	raw, err := ExtractRaw(content)
	if err != nil {
		return result, err
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return result, fmt.Errorf("failed to decode JSON for validation: %w", err)
		}
		if err := schema.schema.Validate(doc); err != nil {
			return result, fmt.Errorf("response does not match %s: %w", schema.name, err)
		}
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
