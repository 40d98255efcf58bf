// Package persona holds the character definition for the digital twin and
// the per-turn context-mode handling.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"
)

//go:embed dna.txt
var defaultDNA string

// Persona is the immutable character configuration, loaded once at startup.
type Persona struct {
	dna string
}

// Load returns the persona. When overridePath names a readable non-empty
// file, its content replaces the embedded default.
func Load(overridePath string) *Persona {
	dna := defaultDNA
	if overridePath != "" {
		if data, err := os.ReadFile(overridePath); err == nil {
			if text := strings.TrimSpace(string(data)); text != "" {
				dna = text
			}
		}
	}
	return &Persona{dna: strings.TrimSpace(dna)}
}

// SystemPrompt renders the full system instruction with the current date.
func (p *Persona) SystemPrompt(now time.Time) string {
	return fmt.Sprintf("%s\n\nHeutiges Datum: %s", p.dna, now.Format("02.01.2006"))
}
