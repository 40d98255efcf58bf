package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// Gemini calls the hosted Generative Language API over plain HTTP. A new
// request carries the full conversational state every time; the client keeps
// no per-conversation handles.
type Gemini struct {
	apiKey     string
	apiBase    string
	model      string
	httpClient *http.Client
}

// NewGemini creates a client for the given credentials. apiBase and model
// fall back to service defaults when empty.
func NewGemini(apiKey, apiBase, model string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		apiKey:     apiKey,
		apiBase:    apiBase,
		model:      model,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// Chat runs one chat-completion turn: persona system instruction, prior
// history, and the new prompt. Returns the model text verbatim.
func (g *Gemini) Chat(ctx context.Context, system string, history []Message, prompt string, opts Options) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, geminiContent{
			Role:  string(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  string(RoleUser),
		Parts: []geminiPart{{Text: prompt}},
	})

	req := geminiRequest{
		Contents:         contents,
		GenerationConfig: generationConfig(opts, ""),
	}
	if strings.TrimSpace(system) != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return g.generate(ctx, req)
}

// GenerateJSON runs a constrained low-temperature call that must return JSON.
func (g *Gemini) GenerateJSON(ctx context.Context, instruction, input string) (string, error) {
	temp := 0.1
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: instruction}}},
		Contents: []geminiContent{{
			Role:  string(RoleUser),
			Parts: []geminiPart{{Text: input}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      &temp,
			ResponseMimeType: "application/json",
		},
	}
	return g.generate(ctx, req)
}

// Transcribe sends WAV audio with a transcription instruction and returns
// the transcript text.
func (g *Gemini) Transcribe(ctx context.Context, audio []byte, instruction string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	temp := 0.0
	req := geminiRequest{
		Contents: []geminiContent{{
			Role: string(RoleUser),
			Parts: []geminiPart{
				{Text: instruction},
				{InlineData: &geminiInlineData{
					MimeType: "audio/wav",
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: &temp},
	}
	return g.generate(ctx, req)
}

func generationConfig(opts Options, mimeType string) *geminiGenerationConfig {
	cfg := &geminiGenerationConfig{ResponseMimeType: mimeType}
	if opts.Temperature > 0 {
		t := opts.Temperature
		cfg.Temperature = &t
	}
	if opts.TopP > 0 {
		p := opts.TopP
		cfg.TopP = &p
	}
	if opts.TopK > 0 {
		k := opts.TopK
		cfg.TopK = &k
	}
	if opts.MaxOutputTokens > 0 {
		m := opts.MaxOutputTokens
		cfg.MaxOutputTokens = &m
	}
	return cfg
}

func (g *Gemini) generate(ctx context.Context, payload geminiRequest) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("gemini API request failed: status=%d error=%s", resp.StatusCode, extractAPIError(body))
	}

	return parseGenerateResponse(body)
}

func parseGenerateResponse(body []byte) (string, error) {
	var apiResponse struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if len(apiResponse.Candidates) == 0 {
		return "", fmt.Errorf("gemini response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range apiResponse.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini response is empty (finish_reason=%s)", apiResponse.Candidates[0].FinishReason)
	}
	return text, nil
}

func extractAPIError(body []byte) string {
	var apiError struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error.Message != "" {
		return apiError.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200] + "..."
	}
	return trimmed
}
