package agent

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mschweiger/twin/pkg/logger"
	"github.com/mschweiger/twin/pkg/memory"
	"github.com/mschweiger/twin/pkg/persona"
	"github.com/mschweiger/twin/pkg/transcribe"
)

var (
	// ErrEmptyInput rejects blank text or zero-byte audio before anything
	// is persisted.
	ErrEmptyInput = errors.New("empty input")
	// ErrDuplicateAudio reports a re-delivered payload identical to the
	// last one this session already processed.
	ErrDuplicateAudio = errors.New("audio already processed")
)

// AudioMarker prefixes transcribed input so provenance stays visible in the
// conversation log.
const AudioMarker = "[Audio] "

// Turn is the persisted user/assistant message pair of one exchange.
type Turn struct {
	ID        string         `json:"id"`
	User      memory.Message `json:"user"`
	Assistant memory.Message `json:"assistant"`
}

// Session owns all mutable conversational state for the process: the
// in-memory mirror of the persisted log and the audio debounce digest.
// Every operation takes the one lock, so turns are strictly serialized and
// the mirror never diverges from the store.
type Session struct {
	mu sync.Mutex

	store       *memory.Store
	engine      *Engine
	extractor   *memory.Extractor
	transcriber *transcribe.Service

	mirror          []memory.Message
	lastAudioDigest string

	log *slog.Logger
}

// NewSession loads the full persisted history into the mirror so the
// displayed conversation survives restarts.
func NewSession(ctx context.Context, store *memory.Store, engine *Engine, extractor *memory.Extractor, transcriber *transcribe.Service) (*Session, error) {
	mirror, err := store.LoadRecent(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	return &Session{
		store:       store,
		engine:      engine,
		extractor:   extractor,
		transcriber: transcriber,
		mirror:      mirror,
		log:         logger.Component("session"),
	}, nil
}

// HandleText runs one full text turn and returns the persisted pair.
func (s *Session) HandleText(ctx context.Context, text string, mode persona.Mode) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processTurn(ctx, text, mode)
}

// HandleAudio transcribes the payload and, on success, runs the regular
// turn with the audio marker prefixed. A failed transcription persists
// nothing. An identical consecutive payload is ignored because the input
// surface may re-deliver the last capture until it is replaced.
func (s *Session) HandleAudio(ctx context.Context, audio []byte, mode persona.Mode) (Turn, error) {
	if len(audio) == 0 {
		return Turn{}, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha1.Sum(audio)
	digest := hex.EncodeToString(sum[:])
	if digest == s.lastAudioDigest {
		return Turn{}, ErrDuplicateAudio
	}

	transcript, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return Turn{}, fmt.Errorf("transcription: %w", err)
	}
	s.lastAudioDigest = digest

	return s.processTurn(ctx, AudioMarker+transcript, mode)
}

// processTurn is the fixed per-turn sequence: persist the user message,
// extract facts from it, generate the reply, persist the assistant message.
// Extraction reads only the just-submitted text, never the reply. Caller
// holds the lock.
func (s *Session) processTurn(ctx context.Context, text string, mode persona.Mode) (Turn, error) {
	turnID := "turn-" + uuid.NewString()

	userID, err := s.store.AppendMessage(ctx, memory.RoleUser, string(mode), text)
	if err != nil {
		return Turn{}, fmt.Errorf("persist user message: %w", err)
	}
	userMsg := memory.Message{
		ID:        userID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Role:      memory.RoleUser,
		Mode:      string(mode),
		Content:   text,
	}
	s.mirror = append(s.mirror, userMsg)

	if facts := s.extractor.Extract(ctx, text); len(facts) > 0 {
		if err := s.store.AppendFacts(ctx, facts, userID); err != nil {
			// The fact channel is non-critical; the reply path goes on.
			s.log.Warn("persisting extracted facts failed", "error", err, "turn_id", turnID)
		}
	}

	reply, err := s.engine.Respond(ctx, persona.Enhance(mode, text), s.mirror)
	if err != nil {
		// The error string becomes the assistant turn so the user sees
		// something and the log stays contiguous.
		s.log.Error("reply generation failed", "error", err, "turn_id", turnID)
		reply = "Fehler: " + err.Error()
	}

	assistantID, err := s.store.AppendMessage(ctx, memory.RoleAssistant, string(mode), reply)
	if err != nil {
		return Turn{}, fmt.Errorf("persist assistant message: %w", err)
	}
	assistantMsg := memory.Message{
		ID:        assistantID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Role:      memory.RoleAssistant,
		Mode:      string(mode),
		Content:   reply,
	}
	s.mirror = append(s.mirror, assistantMsg)

	s.log.Info("turn completed", "turn_id", turnID, "mode", string(mode), "user_msg_id", userID, "assistant_msg_id", assistantID)
	return Turn{ID: turnID, User: userMsg, Assistant: assistantMsg}, nil
}

// Reset clears the durable store and the in-memory mirror.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	s.mirror = nil
	s.lastAudioDigest = ""
	s.log.Info("conversation reset")
	return nil
}

// Messages returns a copy of the conversation in chronological order.
func (s *Session) Messages() []memory.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.Message, len(s.mirror))
	copy(out, s.mirror)
	return out
}

// Facts lists persisted facts, newest first.
func (s *Session) Facts(ctx context.Context, limit int) ([]memory.Fact, error) {
	return s.store.ListFacts(ctx, limit)
}

// Counts reports persisted message and fact totals.
func (s *Session) Counts(ctx context.Context) (messages, facts int64, err error) {
	messages, err = s.store.MessageCount(ctx)
	if err != nil {
		return 0, 0, err
	}
	facts, err = s.store.FactCount(ctx)
	if err != nil {
		return 0, 0, err
	}
	return messages, facts, nil
}
