package store

import (
	"time"

	"flowchat/internal/engine"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatSession is one conversation bound to a workflow. Sessions are created
// explicitly, never mutated, and deleted explicitly by the user.
type ChatSession struct {
	ID         string    `json:"sessionId"`
	WorkflowID string    `json:"workflowId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatMessage is one turn in a session's history. Assistant messages carry
// the execution log of the run that produced them.
type ChatMessage struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"sessionId"`
	Role         Role              `json:"role"`
	Content      string            `json:"content"`
	Log          []engine.LogEntry `json:"executionLog,omitempty"`
	ProcessingMs int64             `json:"processingTimeMs,omitempty"`
	CreatedAt    time.Time         `json:"timestamp"`
}
