package agent

import (
	"fmt"
	"testing"

	"github.com/mschweiger/twin/pkg/memory"
	"github.com/mschweiger/twin/pkg/providers"
)

func makeMessages(n int) []memory.Message {
	out := make([]memory.Message, 0, n)
	for i := 0; i < n; i++ {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		out = append(out, memory.Message{ID: int64(i + 1), Role: role, Content: fmt.Sprintf("msg-%d", i)})
	}
	return out
}

func TestBuildHistory_WindowBound(t *testing.T) {
	const window = 6
	// The list always ends with the just-persisted current user turn; the
	// window drops it and is bounded by window-1.
	cases := []struct {
		total int
		want  int
	}{
		{0, 0},
		{1, 0},
		{3, 2},
		{6, 5},
		{7, 5},
		{40, 5},
	}
	for _, tc := range cases {
		got := buildHistory(makeMessages(tc.total), window)
		if len(got) != tc.want {
			t.Fatalf("total=%d: history length %d, want %d", tc.total, len(got), tc.want)
		}
	}
}

func TestBuildHistory_ChronologicalAndDropsCurrentTurn(t *testing.T) {
	messages := makeMessages(9)
	got := buildHistory(messages, 6)

	if len(got) != 5 {
		t.Fatalf("expected 5 history entries, got %d", len(got))
	}
	// Last element of the source (msg-8, current turn) must be absent.
	for _, h := range got {
		if h.Content == "msg-8" {
			t.Fatal("current turn leaked into history")
		}
	}
	if got[0].Content != "msg-3" || got[4].Content != "msg-7" {
		t.Fatalf("history window misaligned: %+v", got)
	}
}

func TestBuildHistory_RoleMapping(t *testing.T) {
	messages := []memory.Message{
		{Role: memory.RoleUser, Content: "frage"},
		{Role: memory.RoleAssistant, Content: "antwort"},
		{Role: memory.RoleUser, Content: "aktuell"},
	}
	got := buildHistory(messages, 6)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Role != providers.RoleUser {
		t.Fatalf("user role mapped to %q", got[0].Role)
	}
	if got[1].Role != providers.RoleModel {
		t.Fatalf("assistant role must map to model, got %q", got[1].Role)
	}
}
