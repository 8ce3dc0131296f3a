package workflow

import (
	"testing"

	"flowchat/internal/tester"
)

func inputNode(id string) Node { return Node{ID: id, Type: NodeInput} }

func knowledgeNode(id string) Node {
	return Node{ID: id, Type: NodeKnowledge, Knowledge: &KnowledgeConfig{
		Collection: "docs", TopK: 5, Threshold: 0.7,
	}}
}

func llmNode(id string) Node {
	return Node{ID: id, Type: NodeLLM, LLM: &LLMConfig{
		Provider: ProviderOpenAI, Model: "gpt-5-nano", MaxTokens: 1000,
	}}
}

func outputNode(id string) Node {
	return Node{ID: id, Type: NodeOutput, Output: &OutputConfig{Format: FormatText}}
}

func kinds(issues []Issue) []IssueKind {
	out := make([]IssueKind, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func hasKind(issues []Issue, k IssueKind) bool {
	for _, i := range issues {
		if i.Kind == k {
			return true
		}
	}
	return false
}

func TestValidateMinimalPipeline(t *testing.T) {
	g := &Graph{
		Nodes: []Node{inputNode("input-1"), outputNode("output-1")},
		Edges: []Edge{{Source: "input-1", Target: "output-1"}},
	}
	v := (&Validator{}).Validate(g)
	tester.True(t, v.Valid, "minimal input->output graph should validate")
	tester.Eq(t, len(v.Errors), 0)
	tester.Eq(t, len(v.Warnings), 0)
}

func TestValidateDuplicateNodeID(t *testing.T) {
	g := &Graph{Nodes: []Node{inputNode("a"), inputNode("a"), outputNode("out")}}
	v := (&Validator{}).Validate(g)
	tester.False(t, v.Valid)
	tester.True(t, hasKind(v.Errors, DuplicateNode), "kinds=%v", kinds(v.Errors))
}

func TestValidateDanglingEdgeAndSelfLoop(t *testing.T) {
	g := &Graph{
		Nodes: []Node{inputNode("in"), llmNode("llm-1"), outputNode("out")},
		Edges: []Edge{
			{Source: "in", Target: "ghost"},
			{Source: "llm-1", Target: "llm-1"},
			{Source: "in", Target: "llm-1"},
			{Source: "llm-1", Target: "out"},
		},
	}
	v := (&Validator{}).Validate(g)
	tester.False(t, v.Valid)
	tester.True(t, hasKind(v.Errors, DanglingEdge))
	tester.True(t, hasKind(v.Errors, SelfLoop))
	tester.False(t, hasKind(v.Errors, CycleDetected), "self-loop must not double-report as a cycle")
}

func TestValidateCycle(t *testing.T) {
	// llm-1 -> knowledge-1 -> llm-1 closes a loop.
	g := &Graph{
		Nodes: []Node{inputNode("input-1"), knowledgeNode("knowledge-1"), llmNode("llm-1"), outputNode("output-1")},
		Edges: []Edge{
			{Source: "input-1", Target: "llm-1"},
			{Source: "llm-1", Target: "knowledge-1"},
			{Source: "knowledge-1", Target: "llm-1"},
			{Source: "llm-1", Target: "output-1"},
		},
	}
	v := (&Validator{}).Validate(g)
	tester.False(t, v.Valid)
	tester.True(t, hasKind(v.Errors, CycleDetected), "kinds=%v", kinds(v.Errors))
}

func TestValidateMissingRequiredComponents(t *testing.T) {
	v := (&Validator{}).Validate(&Graph{Nodes: []Node{llmNode("llm-1")}})
	tester.False(t, v.Valid)
	count := 0
	for _, e := range v.Errors {
		if e.Kind == MissingRequiredComponent {
			count++
		}
	}
	tester.Eq(t, count, 2, "missing input and missing output are separate findings")
}

func TestValidateMultipleInputsWarns(t *testing.T) {
	g := &Graph{
		Nodes: []Node{inputNode("in-a"), inputNode("in-b"), outputNode("out")},
		Edges: []Edge{
			{Source: "in-a", Target: "out"},
			{Source: "in-b", Target: "out"},
		},
	}
	v := (&Validator{}).Validate(g)
	tester.True(t, v.Valid, "extra inputs warn, they do not fail")
	tester.True(t, hasKind(v.Warnings, AmbiguousEntryPoint))
	// First-created input is named as the effective entry.
	for _, w := range v.Warnings {
		if w.Kind == AmbiguousEntryPoint {
			tester.Eq(t, w.NodeID, "in-a")
		}
	}
}

func TestValidateDisconnectedWarns(t *testing.T) {
	g := &Graph{
		Nodes: []Node{inputNode("in"), llmNode("lonely"), outputNode("out")},
		Edges: []Edge{{Source: "in", Target: "out"}},
	}
	v := (&Validator{}).Validate(g)
	tester.True(t, v.Valid)
	tester.True(t, hasKind(v.Warnings, DisconnectedComponent))
}

func TestValidateConfigSchema(t *testing.T) {
	cases := []struct {
		name string
		node Node
	}{
		{"knowledge without config", Node{ID: "k", Type: NodeKnowledge}},
		{"knowledge empty collection", Node{ID: "k", Type: NodeKnowledge,
			Knowledge: &KnowledgeConfig{TopK: 5, Threshold: 0.5}}},
		{"knowledge topK out of range", Node{ID: "k", Type: NodeKnowledge,
			Knowledge: &KnowledgeConfig{Collection: "docs", TopK: 51, Threshold: 0.5}}},
		{"knowledge threshold out of range", Node{ID: "k", Type: NodeKnowledge,
			Knowledge: &KnowledgeConfig{Collection: "docs", TopK: 5, Threshold: 1.5}}},
		{"llm unknown provider", Node{ID: "l", Type: NodeLLM,
			LLM: &LLMConfig{Provider: "anthropic", Model: "m", MaxTokens: 100}}},
		{"llm missing model", Node{ID: "l", Type: NodeLLM,
			LLM: &LLMConfig{Provider: ProviderOpenAI, MaxTokens: 100}}},
		{"llm zero maxTokens", Node{ID: "l", Type: NodeLLM,
			LLM: &LLMConfig{Provider: ProviderOpenAI, Model: "m"}}},
		{"output bad format", Node{ID: "o", Type: NodeOutput,
			Output: &OutputConfig{Format: "yaml"}}},
		{"input with config", Node{ID: "i", Type: NodeInput,
			Output: &OutputConfig{Format: FormatText}}},
		{"unknown type", Node{ID: "x", Type: "branch"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &Graph{Nodes: []Node{inputNode("in"), tc.node, outputNode("out")}}
			v := (&Validator{}).Validate(g)
			tester.True(t, hasKind(v.Errors, InvalidConfiguration), "kinds=%v", kinds(v.Errors))
		})
	}
}

func TestValidateMissingCredential(t *testing.T) {
	val := &Validator{HasCredential: func(p Provider) bool { return p == ProviderGemini }}
	g := &Graph{
		Nodes: []Node{inputNode("in"), llmNode("llm-1"), outputNode("out")},
		Edges: []Edge{
			{Source: "in", Target: "llm-1"},
			{Source: "llm-1", Target: "out"},
		},
	}
	v := val.Validate(g)
	tester.False(t, v.Valid)
	tester.True(t, hasKind(v.Errors, InvalidConfiguration))
}

func TestValidateIdempotent(t *testing.T) {
	g := &Graph{
		Nodes: []Node{inputNode("a"), inputNode("a"), llmNode("llm-1")},
		Edges: []Edge{{Source: "a", Target: "missing"}},
	}
	val := &Validator{}
	first := val.Validate(g)
	second := val.Validate(g)
	tester.Eq(t, kinds(second.Errors), kinds(first.Errors))
	tester.Eq(t, kinds(second.Warnings), kinds(first.Warnings))
}
