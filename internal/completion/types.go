package completion

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Endpoint is one completion backend. Clients try endpoints in order and
// stop at the first success.
type Endpoint struct {
	Name    string
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Reply is a successful completion result.
type Reply struct {
	Text     string
	Endpoint Endpoint
}
