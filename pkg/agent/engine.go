package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mschweiger/twin/pkg/logger"
	"github.com/mschweiger/twin/pkg/memory"
	"github.com/mschweiger/twin/pkg/persona"
	"github.com/mschweiger/twin/pkg/providers"
)

// DefaultHistoryWindow bounds how many persisted messages feed the prompt.
const DefaultHistoryWindow = 6

// ChatClient is the hosted chat-completion call the engine drives.
type ChatClient interface {
	Chat(ctx context.Context, system string, history []providers.Message, prompt string, opts providers.Options) (string, error)
}

// Engine turns a context-enhanced prompt plus the conversation mirror into
// an assistant reply. Conversational state travels entirely through the
// history argument; nothing is reused across turns.
type Engine struct {
	llm     ChatClient
	persona *persona.Persona
	window  int
	opts    providers.Options
	now     func() time.Time
	log     *slog.Logger
}

func NewEngine(llm ChatClient, p *persona.Persona, window int) *Engine {
	if window < 2 {
		window = DefaultHistoryWindow
	}
	return &Engine{
		llm:     llm,
		persona: p,
		window:  window,
		opts:    providers.ChatDefaults(),
		now:     time.Now,
		log:     logger.Component("engine"),
	}
}

// buildHistory maps the tail of the conversation to provider turns. The
// final element is dropped: it is the just-persisted current user turn,
// which goes out separately as the new prompt. History carries each
// message's raw content, not the context-tag-enhanced form.
func buildHistory(messages []memory.Message, window int) []providers.Message {
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	if len(messages) > 0 {
		messages = messages[:len(messages)-1]
	}

	history := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		role := providers.RoleModel
		if m.Role == memory.RoleUser {
			role = providers.RoleUser
		}
		history = append(history, providers.Message{Role: role, Content: m.Content})
	}
	return history
}

// Respond invokes the chat completion. The caller converts errors into the
// user-visible reply; nothing here panics or retries.
func (e *Engine) Respond(ctx context.Context, prompt string, messages []memory.Message) (string, error) {
	history := buildHistory(messages, e.window)
	system := e.persona.SystemPrompt(e.now())

	reply, err := e.llm.Chat(ctx, system, history, prompt, e.opts)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	e.log.Info("reply generated", "history_len", len(history), "reply_chars", len(reply))
	return reply, nil
}
