package model

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted conversation turn. Assistant messages carry the
// evidence, fact-check verdicts, and arbitration outcome that produced them.
// A message is written once at the end of a turn and never updated.
type Message struct {
	ID                   string             `json:"id"`
	ChatID               string             `json:"chat_id"`
	Role                 Role               `json:"role"`
	Content              string             `json:"content"`
	Sources              []EvidenceFragment `json:"sources,omitempty"`
	FactCheck            []FactCheckVerdict `json:"fact_check,omitempty"`
	Confidence           *float64           `json:"confidence,omitempty"`
	PerspectiveReasoning string             `json:"perspective_reasoning,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// Chat groups the messages of one conversation.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxTitleLength caps generated chat titles.
const MaxTitleLength = 80
