package persona

import "strings"

// Mode selects which side of the persona answers a turn.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeBusiness Mode = "business"
	ModePrivate  Mode = "private"
	ModeBrand    Mode = "brand"
)

// ParseMode maps a surface selector value to a Mode. Unknown or empty
// values fall back to auto-detection.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeBusiness:
		return ModeBusiness
	case ModePrivate:
		return ModePrivate
	case ModeBrand:
		return ModeBrand
	default:
		return ModeAuto
	}
}

// Enhance produces the prompt actually sent to the model. In auto mode the
// text passes through unchanged and the DNA's own trigger heuristics decide;
// any explicit mode prefixes a context tag that overrides them for the turn.
func Enhance(mode Mode, text string) string {
	if mode == ModeAuto || mode == "" {
		return text
	}
	return "[CONTEXT: " + strings.ToUpper(string(mode)) + "] " + text
}
