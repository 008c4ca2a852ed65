package models

import (
	"context"
	"fmt"
	"strings"
)

// DummyLLM is a lightweight model implementation useful for local testing without API calls.
type DummyLLM struct {
	Prefix string
}

func NewDummyLLM(prefix string) *DummyLLM {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyLLM{Prefix: prefix}
}

func (d *DummyLLM) Generate(_ context.Context, prompt string) (any, error) {
	lines := strings.Split(prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return fmt.Sprintf("%s %s", d.Prefix, last), nil
}

// ScriptedLLM replays canned responses in order, then repeats the last one.
type ScriptedLLM struct {
	Responses []string
	Err       error
	Prompts   []string
}

func (s *ScriptedLLM) Generate(_ context.Context, prompt string) (any, error) {
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return "", nil
	}
	idx := len(s.Prompts) - 1
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	return s.Responses[idx], nil
}

var (
	_ Agent = (*DummyLLM)(nil)
	_ Agent = (*ScriptedLLM)(nil)
)
