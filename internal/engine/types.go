package engine

import (
	"time"

	"flowchat/internal/llm"
)

// NodeStatus is the outcome of one node within a run.
type NodeStatus string

const (
	StatusSuccess NodeStatus = "success"
	StatusFailed  NodeStatus = "failed"
	StatusSkipped NodeStatus = "skipped"
)

// State is the engine's position in its run lifecycle.
type State string

const (
	StatePlanned   State = "planned"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ChunkRef records one retrieved chunk for the log without carrying its text.
type ChunkRef struct {
	ChunkID string  `json:"chunkId"`
	Score   float64 `json:"score"`
}

// LogEntry is one per-node record in the execution log. The log is the only
// part of the execution context that outlives a run; it is persisted as
// message metadata.
type LogEntry struct {
	NodeID     string     `json:"nodeId"`
	StartedAt  time.Time  `json:"startedAt"`
	DurationMs int64      `json:"durationMs"`
	Status     NodeStatus `json:"status"`
	ErrorKind  ErrorKind  `json:"errorKind,omitempty"`
	Summary    string     `json:"outputSummary,omitempty"`
	Chunks     []ChunkRef `json:"chunks,omitempty"`
	Usage      *llm.Usage `json:"usage,omitempty"`
}

// nodeResult is what one executor writes into the execution context under
// its node's id.
type nodeResult struct {
	text          string
	chunks        []ChunkRef
	usage         *llm.Usage
	webSearchUsed bool
	warning       string
}

// Result is the outcome of one engine run: the terminal answer when the run
// completed, the classified error when it failed, and the log either way.
type Result struct {
	State      State           `json:"state"`
	Answer     string          `json:"answer,omitempty"`
	Log        []LogEntry      `json:"log"`
	Err        *ExecutionError `json:"-"`
	DurationMs int64           `json:"durationMs"`
}
