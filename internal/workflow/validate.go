package workflow

import "fmt"

// IssueKind classifies a validation finding.
type IssueKind string

// Error kinds. Any of these makes the graph invalid.
const (
	DuplicateNode            IssueKind = "DuplicateNode"
	DanglingEdge             IssueKind = "DanglingEdge"
	SelfLoop                 IssueKind = "SelfLoop"
	CycleDetected            IssueKind = "CycleDetected"
	MissingRequiredComponent IssueKind = "MissingRequiredComponent"
	InvalidConfiguration     IssueKind = "InvalidConfiguration"
)

// Warning kinds. Non-fatal; execution proceeds.
const (
	AmbiguousEntryPoint   IssueKind = "AmbiguousEntryPoint"
	DisconnectedComponent IssueKind = "DisconnectedComponent"
)

// Issue is a single validation finding tied to a node or edge.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	NodeID  string    `json:"nodeId,omitempty"`
	Message string    `json:"message"`
}

// Validation is the outcome of validating one graph. A graph with only
// warnings is valid.
type Validation struct {
	Valid    bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validator runs structural and semantic checks over a Graph.
// HasCredential, when set, lets the configuration check flag LLM nodes whose
// provider has no usable credential; when nil the check is skipped.
type Validator struct {
	HasCredential func(Provider) bool
}

// Validate runs every check and collects all findings; it never short-circuits.
// Check order: uniqueness, edge integrity, self-loops, cycles, role
// cardinality, connectivity, per-node configuration.
func (v *Validator) Validate(g *Graph) Validation {
	var errs, warns []Issue

	// 1. Node id uniqueness.
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			errs = append(errs, Issue{Kind: DuplicateNode, NodeID: n.ID,
				Message: fmt.Sprintf("duplicate node id %q", n.ID)})
			continue
		}
		seen[n.ID] = true
	}

	// 2/3. Edge referential integrity and self-loops. Edges that fail either
	// check are excluded from the structural checks below.
	var edges []Edge
	for _, e := range g.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			errs = append(errs, Issue{Kind: DanglingEdge,
				Message: fmt.Sprintf("edge %s->%s references an unknown node", e.Source, e.Target)})
			continue
		}
		if e.Source == e.Target {
			errs = append(errs, Issue{Kind: SelfLoop, NodeID: e.Source,
				Message: fmt.Sprintf("node %q connects to itself", e.Source)})
			continue
		}
		edges = append(edges, e)
	}

	// 4. Cycle detection over the surviving edges (Kahn reduction).
	if hasCycle(g.Nodes, edges) {
		errs = append(errs, Issue{Kind: CycleDetected,
			Message: "workflow contains a cycle; no execution order exists"})
	}

	// 5. Role cardinality.
	var inputs, outputs []string
	for _, n := range g.Nodes {
		switch n.Type {
		case NodeInput:
			inputs = append(inputs, n.ID)
		case NodeOutput:
			outputs = append(outputs, n.ID)
		}
	}
	if len(inputs) == 0 {
		errs = append(errs, Issue{Kind: MissingRequiredComponent,
			Message: "workflow requires exactly one input node"})
	}
	if len(outputs) == 0 {
		errs = append(errs, Issue{Kind: MissingRequiredComponent,
			Message: "workflow requires at least one output node"})
	}
	if len(inputs) > 1 {
		// First-created input wins as the entry for query injection.
		warns = append(warns, Issue{Kind: AmbiguousEntryPoint, NodeID: inputs[0],
			Message: fmt.Sprintf("%d input nodes; %q is used as the entry point", len(inputs), inputs[0])})
	}

	// 6. Connectivity. Disconnected nodes are excluded from the plan but do
	// not block validation.
	indeg := make(map[string]int)
	outdeg := make(map[string]int)
	for _, e := range edges {
		outdeg[e.Source]++
		indeg[e.Target]++
	}
	for _, n := range g.Nodes {
		if n.Type != NodeInput && indeg[n.ID] == 0 {
			warns = append(warns, Issue{Kind: DisconnectedComponent, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has no incoming connection", n.ID)})
		}
		if n.Type != NodeOutput && outdeg[n.ID] == 0 {
			warns = append(warns, Issue{Kind: DisconnectedComponent, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has no outgoing connection", n.ID)})
		}
	}

	// 7. Per-node configuration schema.
	for _, n := range g.Nodes {
		errs = append(errs, v.validateConfig(n)...)
	}

	return Validation{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func (v *Validator) validateConfig(n Node) []Issue {
	bad := func(format string, args ...any) Issue {
		return Issue{Kind: InvalidConfiguration, NodeID: n.ID,
			Message: fmt.Sprintf("node %q: ", n.ID) + fmt.Sprintf(format, args...)}
	}

	var issues []Issue
	switch n.Type {
	case NodeInput:
		if n.Knowledge != nil || n.LLM != nil || n.Output != nil {
			issues = append(issues, bad("input nodes take no configuration"))
		}
	case NodeKnowledge:
		cfg := n.Knowledge
		if cfg == nil {
			issues = append(issues, bad("knowledge configuration is required"))
			break
		}
		if cfg.Collection == "" {
			issues = append(issues, bad("collection name is required"))
		}
		if cfg.TopK < 1 || cfg.TopK > 50 {
			issues = append(issues, bad("topK must be between 1 and 50, got %d", cfg.TopK))
		}
		if cfg.Threshold < 0 || cfg.Threshold > 1 {
			issues = append(issues, bad("threshold must be within [0,1], got %g", cfg.Threshold))
		}
	case NodeLLM:
		cfg := n.LLM
		if cfg == nil {
			issues = append(issues, bad("llm configuration is required"))
			break
		}
		switch cfg.Provider {
		case ProviderOpenAI, ProviderGemini:
			if v.HasCredential != nil && !v.HasCredential(cfg.Provider) {
				issues = append(issues, bad("no credential configured for provider %q", cfg.Provider))
			}
		default:
			issues = append(issues, bad("unknown provider %q", cfg.Provider))
		}
		if cfg.Model == "" {
			issues = append(issues, bad("model is required"))
		}
		if cfg.MaxTokens <= 0 {
			issues = append(issues, bad("maxTokens must be positive, got %d", cfg.MaxTokens))
		}
	case NodeOutput:
		cfg := n.Output
		if cfg == nil {
			issues = append(issues, bad("output configuration is required"))
			break
		}
		if cfg.Format != FormatText && cfg.Format != FormatStructured {
			issues = append(issues, bad("unknown output format %q", cfg.Format))
		}
	default:
		issues = append(issues, bad("unknown node type %q", n.Type))
	}
	return issues
}

// hasCycle reports whether the directed graph keeps at least one node locked
// behind a non-zero in-degree after repeatedly removing ready nodes.
func hasCycle(nodes []Node, edges []Edge) bool {
	indeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := indeg[n.ID]; !ok {
			indeg[n.ID] = 0
		}
	}
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		indeg[e.Target]++
	}

	queue := make([]string, 0, len(indeg))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return removed < len(indeg)
}
