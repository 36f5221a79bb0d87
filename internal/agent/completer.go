// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"strings"
)

// Completer abstracts a chat-completion model: one system instruction,
// one user prompt, one text response. The Claude and Gemini backends
// implement it; tests supply canned completers.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// extractJSON strips a Markdown code fence from a model response if
// present and returns the JSON body. Models occasionally wrap structured
// output in ```json fences despite instructions not to.
func extractJSON(response string) string {
	s := strings.TrimSpace(response)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
