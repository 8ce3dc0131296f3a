package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
)

// ErrNotValidated is returned when planning is attempted on a graph that
// failed validation. Callers are expected to validate first; hitting this is
// a programming error, not a runtime condition.
var ErrNotValidated = errors.New("workflow: plan requires a validated graph")

// Plan is a deterministic linear execution order for one graph version.
// Skipped lists nodes excluded from the order because they are unreachable
// from the entry node; the engine records them as skipped.
type Plan struct {
	Hash    string   `json:"hash"`
	Order   []string `json:"order"`
	Skipped []string `json:"skipped,omitempty"`
	Entry   string   `json:"entry"`
}

// planOrder computes the execution order with Kahn's algorithm restricted to
// nodes reachable from the entry input. When several nodes are ready at once
// the one earliest in the graph's node list wins, which makes the order
// reproducible for identical input.
func planOrder(g *Graph) *Plan {
	entry := ""
	for _, n := range g.Nodes {
		if n.Type == NodeInput {
			entry = n.ID
			break
		}
	}

	pos := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, ok := pos[n.ID]; !ok {
			pos[n.ID] = i
		}
	}

	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := pos[e.Source]; !ok {
			continue
		}
		if _, ok := pos[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	// Reachability from the entry node; unreachable nodes are skipped.
	reachable := map[string]bool{}
	if entry != "" {
		stack := []string{entry}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reachable[id] {
				continue
			}
			reachable[id] = true
			stack = append(stack, adj[id]...)
		}
	}

	indeg := make(map[string]int, len(reachable))
	for id := range reachable {
		indeg[id] = 0
	}
	for src, targets := range adj {
		if !reachable[src] {
			continue
		}
		for _, t := range targets {
			if reachable[t] {
				indeg[t]++
			}
		}
	}

	order := make([]string, 0, len(reachable))
	done := make(map[string]bool, len(reachable))
	for len(order) < len(reachable) {
		// Pick the ready node earliest in insertion order.
		next := ""
		for _, n := range g.Nodes {
			if reachable[n.ID] && !done[n.ID] && indeg[n.ID] == 0 {
				next = n.ID
				break
			}
		}
		if next == "" {
			break // cycle; validation should have caught this
		}
		done[next] = true
		order = append(order, next)
		for _, t := range adj[next] {
			if reachable[t] && !done[t] {
				indeg[t]--
			}
		}
	}

	var skipped []string
	for _, n := range g.Nodes {
		if !done[n.ID] {
			skipped = append(skipped, n.ID)
		}
	}
	return &Plan{Order: order, Skipped: skipped, Entry: entry}
}

// GraphHash returns a content hash of the graph: sorted node ids with their
// configurations plus sorted edges. Two graphs with the same hash plan
// identically, so the hash doubles as the plan-cache key.
func GraphHash(g *Graph) string {
	type hashedNode struct {
		ID        string           `json:"id"`
		Type      NodeType         `json:"type"`
		Knowledge *KnowledgeConfig `json:"knowledge,omitempty"`
		LLM       *LLMConfig       `json:"llm,omitempty"`
		Output    *OutputConfig    `json:"output,omitempty"`
		Pos       int              `json:"pos"`
	}
	nodes := make([]hashedNode, 0, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes = append(nodes, hashedNode{n.ID, n.Type, n.Knowledge, n.LLM, n.Output, i})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := append([]Edge(nil), g.Edges...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	payload, _ := json.Marshal(struct {
		Nodes []hashedNode `json:"nodes"`
		Edges []Edge       `json:"edges"`
	}{nodes, edges})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
