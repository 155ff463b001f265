package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoRule is returned by Scripted when no rule matches and no default is set.
var ErrNoRule = errors.New("scripted oracle: no rule matches prompt")

// Rule answers every prompt that contains Match.
type Rule struct {
	Match  string
	Answer func(Request) (string, error)
}

// Scripted is a deterministic Oracle for tests. Rules are checked in the
// order they were added and the first whose Match is a substring of the
// prompt answers it. It is safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	rules    []Rule
	fallback func(Request) (string, error)
	calls    []Request
}

// NewScripted returns a Scripted oracle with no rules.
func NewScripted() *Scripted {
	return &Scripted{}
}

// On registers a fixed reply for prompts containing match.
func (s *Scripted) On(match, reply string) *Scripted {
	return s.OnFunc(match, func(Request) (string, error) { return reply, nil })
}

// OnError makes prompts containing match fail with err.
func (s *Scripted) OnError(match string, err error) *Scripted {
	return s.OnFunc(match, func(Request) (string, error) { return "", err })
}

// OnFunc registers a computed reply for prompts containing match.
func (s *Scripted) OnFunc(match string, fn func(Request) (string, error)) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, Rule{Match: match, Answer: fn})
	return s
}

// Default sets the reply used when no rule matches.
func (s *Scripted) Default(reply string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = func(Request) (string, error) { return reply, nil }
	return s
}

func (s *Scripted) Model() string { return "scripted" }

func (s *Scripted) Ask(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := req.Prompt()

	s.mu.Lock()
	s.calls = append(s.calls, req)
	answer := s.fallback
	for _, r := range s.rules {
		if strings.Contains(prompt, r.Match) {
			answer = r.Answer
			break
		}
	}
	s.mu.Unlock()

	if answer == nil {
		return "", ErrNoRule
	}
	return answer(req)
}

// Calls returns a copy of every request received so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching counts requests whose prompt contains match.
func (s *Scripted) CallsMatching(match string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.Prompt(), match) {
			n++
		}
	}
	return n
}
