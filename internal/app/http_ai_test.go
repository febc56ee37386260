package app

import (
	"net/http"
	"strings"
	"testing"
)

func TestGenerateNoAgentsEnabled(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/ai/generate", "avery", map[string]any{
		"configs": []map[string]any{
			{"enabled": false, "prompt": "A", "model": "gpt-4o"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "Error: No AI agents enabled." {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGenerateChainsAgents(t *testing.T) {
	env := newTestEnv(t)
	// Agent 0 completes to "ECHO:A"; the final agent streams its input
	// verbatim, so the second agent's configured prompt is ignored.
	rec, _ := env.do(t, http.MethodPost, "/api/ai/generate", "avery", map[string]any{
		"configs": []map[string]any{
			{"enabled": true, "prompt": "A", "model": "gpt-4o"},
			{"enabled": true, "prompt": "ignored", "model": "gpt-4o"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "ECHO:A" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGenerateSingleAgentStreamsOwnPrompt(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/ai/generate", "avery", map[string]any{
		"configs": []map[string]any{
			{"enabled": true, "prompt": "solo", "model": "gemini-pro"},
		},
	})
	if rec.Body.String() != "solo" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGenerateRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/ai/generate", "", map[string]any{"configs": []map[string]any{}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
