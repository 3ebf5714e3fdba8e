package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message from the task submitter.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by an execution backend.
	RoleAssistant Role = "assistant"
	// RoleSystem is an injected system message.
	RoleSystem Role = "system"
)

// Message is one entry in a cascade's conversation history.
// Histories are append-only; escalations carry the complete ordered
// history into the next tier.
type Message struct {
	// Role is the message author.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`
}
