package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mschweiger/twin/pkg/logger"
)

// maxFactsPerMessage caps one extraction pass; a single chat message never
// yields more than this.
const maxFactsPerMessage = 16

const extractionInstruction = `Du analysierst eine Chat-Nachricht und extrahierst ausschließlich überprüfbare Fakten über den Nutzer. Keine Spekulation, keine Meinungen, keine Duplikate.

Antworte NUR mit einer JSON-Liste, ohne weiteren Text:
[{"category": "...", "k": "...", "v": "..."}]

Erlaubte Kategorien: profile, career, skills, achievements, principles, tools, other.
"k" ist ein kurzes semantisches Label, "v" der Wert.
Wenn die Nachricht keine Fakten enthält, antworte mit [].`

// JSONCompleter produces constrained JSON output from the hosted model.
type JSONCompleter interface {
	GenerateJSON(ctx context.Context, instruction, input string) (string, error)
}

// Extractor derives structured facts from user text. It is a best-effort
// side channel: every failure mode yields an empty list, never an error,
// so the reply path is never blocked.
type Extractor struct {
	llm JSONCompleter
	log *slog.Logger
}

func NewExtractor(llm JSONCompleter) *Extractor {
	return &Extractor{llm: llm, log: logger.Component("extractor")}
}

// Extract returns zero or more facts found in text. Source message ids are
// attached by the caller on persistence.
func (e *Extractor) Extract(ctx context.Context, text string) []Fact {
	text = strings.TrimSpace(text)
	if text == "" || e.llm == nil {
		return nil
	}

	raw, err := e.llm.GenerateJSON(ctx, extractionInstruction, text)
	if err != nil {
		e.log.Warn("fact extraction call failed", "error", err)
		return nil
	}

	facts := parseFacts(raw)
	if len(facts) > 0 {
		e.log.Info("facts extracted", "count", len(facts))
	}
	return facts
}

var codeFenceRegex = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeFence removes a surrounding triple-backtick fence, optionally
// tagged json in any case, tolerating leading/trailing whitespace.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseFacts decodes the model output. The top-level value must be a list;
// elements missing any of category/k/v are dropped silently.
func parseFacts(raw string) []Fact {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil
	}

	var elements []any
	if err := json.Unmarshal([]byte(cleaned), &elements); err != nil {
		return nil
	}

	out := make([]Fact, 0, len(elements))
	for _, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		category, okC := coerceString(el["category"])
		key, okK := coerceString(el["k"])
		value, okV := coerceString(el["v"])
		if !okC || !okK || !okV {
			continue
		}
		category = strings.ToLower(strings.TrimSpace(category))
		if !validCategory(category) {
			category = "other"
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out = append(out, Fact{Category: category, Key: key, Value: value})
		if len(out) == maxFactsPerMessage {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func coerceString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), "."), true
	case bool:
		return fmt.Sprintf("%t", val), true
	default:
		return "", false
	}
}
