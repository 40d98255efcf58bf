// Package transcribe converts a recorded utterance to German text through an
// ordered list of engines: the hosted multimodal model first, then a
// speech-recognition fallback. Engines never run in parallel; the fallback
// is consulted only after the primary fails or returns nothing.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mschweiger/twin/pkg/logger"
)

// FailureNotice is the user-visible German notice shown when every engine
// failed. Callers decide between success and failure by the returned error,
// not by matching this text.
const FailureNotice = "Transkription fehlgeschlagen."

// Engine is one transcription backend.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Service runs the engines in their configured order.
type Service struct {
	engines []Engine
	log     *slog.Logger
}

func NewService(engines ...Engine) *Service {
	return &Service{engines: engines, log: logger.Component("transcribe")}
}

// Transcribe returns the first non-empty transcript. An empty result from an
// engine counts as a failure of that tier. When all engines fail the error
// aggregates every tier's failure.
func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	if len(s.engines) == 0 {
		return "", fmt.Errorf("no transcription engines configured")
	}

	var errs []error
	for _, engine := range s.engines {
		text, err := engine.Transcribe(ctx, audio)
		if err != nil {
			s.log.Warn("transcription tier failed", "engine", engine.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			s.log.Warn("transcription tier returned empty transcript", "engine", engine.Name())
			errs = append(errs, fmt.Errorf("%s: empty transcript", engine.Name()))
			continue
		}
		s.log.Info("transcription succeeded", "engine", engine.Name(), "chars", len(text))
		return text, nil
	}

	return "", fmt.Errorf("all transcription engines failed: %w", errors.Join(errs...))
}
