package providers

// Role is the wire-level role of a prior conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior turn handed to the model as history.
type Message struct {
	Role    Role
	Content string
}

// Options is the sampling configuration for a generation call.
type Options struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// ChatDefaults is the fixed sampling configuration for conversational
// replies.
func ChatDefaults() Options {
	return Options{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 1024,
	}
}
