package transcribe

import "context"

const geminiInstruction = "Transkribiere die folgende Audioaufnahme wortgetreu auf Deutsch. Gib ausschließlich den transkribierten Text zurück, ohne Kommentare, Anführungszeichen oder Formatierung."

// AudioModel is the hosted multimodal call the primary tier runs through.
type AudioModel interface {
	Transcribe(ctx context.Context, audio []byte, instruction string) (string, error)
}

// GeminiEngine is the primary tier: the hosted model with a
// transcript-only instruction.
type GeminiEngine struct {
	model AudioModel
}

func NewGeminiEngine(model AudioModel) *GeminiEngine {
	return &GeminiEngine{model: model}
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return e.model.Transcribe(ctx, audio, geminiInstruction)
}
