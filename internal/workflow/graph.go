package workflow

import "time"

// NodeType identifies the kind of work a node performs.
type NodeType string

const (
	NodeInput     NodeType = "input"
	NodeKnowledge NodeType = "knowledge"
	NodeLLM       NodeType = "llm"
	NodeOutput    NodeType = "output"
)

// Provider names a language-model backend family. Concrete backends are
// registered against these names; see internal/llm.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// OutputFormat selects how the terminal node renders its answer.
type OutputFormat string

const (
	FormatText       OutputFormat = "text"
	FormatStructured OutputFormat = "structured"
)

// KnowledgeConfig configures a knowledge-base search node.
type KnowledgeConfig struct {
	Collection string  `json:"collection"`
	TopK       int     `json:"topK"`
	Threshold  float64 `json:"threshold"`
}

// LLMConfig configures a generation node.
type LLMConfig struct {
	Provider       Provider `json:"provider"`
	Model          string   `json:"model"`
	MaxTokens      int      `json:"maxTokens"`
	UseWebSearch   bool     `json:"useWebSearch"`
	PromptTemplate string   `json:"promptTemplate,omitempty"`
}

// OutputConfig configures the terminal node.
type OutputConfig struct {
	Format OutputFormat `json:"format"`
}

// Node is a typed unit of work. Exactly one of the config fields may be set,
// and it must match Type; the validator rejects mismatches. Input nodes carry
// no configuration.
type Node struct {
	ID        string           `json:"id"`
	Type      NodeType         `json:"type"`
	Knowledge *KnowledgeConfig `json:"knowledge,omitempty"`
	LLM       *LLMConfig       `json:"llm,omitempty"`
	Output    *OutputConfig    `json:"output,omitempty"`
}

// Edge is a directed dependency: Source must run before Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the in-memory form of a workflow: an ordered node list plus edges.
// Node order is load-bearing — the planner breaks ties by insertion position.
// A Graph handed to the engine is treated as immutable; edits elsewhere must
// produce a new value (and therefore a new content hash).
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Workflow is the persisted definition that owns a graph.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Graph       Graph     `json:"graph"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NodeByID returns the node with the given id, if present.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Predecessors returns the source ids of every edge pointing at target,
// in edge order.
func (g *Graph) Predecessors(target string) []string {
	var preds []string
	for _, e := range g.Edges {
		if e.Target == target {
			preds = append(preds, e.Source)
		}
	}
	return preds
}
