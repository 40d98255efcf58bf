package memory

import "time"

// Message roles. Only these two appear in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn in the conversation record.
type Message struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Role      string    `json:"role"`
	Mode      string    `json:"mode"`
	Content   string    `json:"content"`
}

// Fact is a structured claim extracted from a user message.
type Fact struct {
	ID              int64     `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Category        string    `json:"category"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	SourceMessageID int64     `json:"source_message_id"`
}

// Categories is the closed set a fact may be filed under. Anything the
// extractor returns outside this set is folded into "other".
var Categories = []string{
	"profile",
	"career",
	"skills",
	"achievements",
	"principles",
	"tools",
	"other",
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
