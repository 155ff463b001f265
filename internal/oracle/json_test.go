package oracle

import (
	"context"
	"errors"
	"testing"
)

type answer struct {
	Answer string `json:"answer"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: `{"answer": "yes"}`, want: "yes"},
		{name: "json fence", input: "```json\n{\"answer\": \"no\"}\n```", want: "no"},
		{name: "bare fence", input: "```\n{\"answer\": \"yes\"}\n```", want: "yes"},
		{name: "surrounding prose", input: "Sure! Here it is: {\"answer\": \"yes\"} Hope that helps.", want: "yes"},
		{name: "trailing comma", input: `{"answer": "yes",}`, want: "yes"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "no json", input: "I cannot answer that.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON[answer](tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractJSON(%q) expected error, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q) unexpected error: %v", tt.input, err)
			}
			if got.Answer != tt.want {
				t.Errorf("ExtractJSON(%q).Answer = %q, want %q", tt.input, got.Answer, tt.want)
			}
		})
	}
}

func TestExtractJSONNone(t *testing.T) {
	type item struct {
		Title string `json:"title"`
		Page  *int   `json:"page"`
	}
	got, err := ExtractJSON[[]item](`[{"title": "Intro", "page": None}, ]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Page != nil {
		t.Errorf("got %+v, want one item with nil page", got)
	}
}

func TestDecodeValidated(t *testing.T) {
	schema := MustCompileSchema("answer.json", `{
		"type": "object",
		"required": ["answer"],
		"properties": {"answer": {"type": "string", "enum": ["yes", "no"]}}
	}`)

	if _, err := DecodeValidated[answer](`{"answer": "yes"}`, schema); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if _, err := DecodeValidated[answer](`{"answer": "maybe"}`, schema); err == nil {
		t.Error("expected enum violation to be rejected")
	}
	if _, err := DecodeValidated[answer](`{"other": 1}`, schema); err == nil {
		t.Error("expected missing field to be rejected")
	}
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted().
		On("alpha", "first").
		On("alp", "second").
		OnError("fail", boom).
		Default("fallback")

	tests := []struct {
		prompt  string
		want    string
		wantErr error
	}{
		{prompt: "alpha beta", want: "first"},
		{prompt: "alps", want: "second"},
		{prompt: "please fail", wantErr: boom},
		{prompt: "unknown", want: "fallback"},
	}

	for _, tt := range tests {
		got, err := s.Ask(context.Background(), Request{Instruction: tt.prompt})
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Ask(%q) error = %v, want %v", tt.prompt, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Ask(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}

	if n := len(s.Calls()); n != len(tests) {
		t.Errorf("recorded %d calls, want %d", n, len(tests))
	}
	if n := s.CallsMatching("alp"); n != 2 {
		t.Errorf("CallsMatching(alp) = %d, want 2", n)
	}
}

func TestScriptedNoRule(t *testing.T) {
	_, err := NewScripted().Ask(context.Background(), Request{Instruction: "x"})
	if !errors.Is(err, ErrNoRule) {
		t.Errorf("error = %v, want ErrNoRule", err)
	}
}
