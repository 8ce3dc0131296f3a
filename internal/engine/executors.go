package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"flowchat/internal/retrieval"
	"flowchat/internal/websearch"
	"flowchat/internal/workflow"
)

// runContext is the accumulated state of one execution: the user query plus
// every finished node's output, keyed by node id. It is discarded when the
// run ends; only its projection into the log survives.
type runContext struct {
	query   string
	outputs map[string]*nodeResult
	plan    *workflow.Plan
	graph   *workflow.Graph
}

// mergedPredecessorText joins the text outputs of a node's predecessors with
// newlines, in plan order.
func (rc *runContext) mergedPredecessorText(nodeID string) string {
	preds := rc.graph.Predecessors(nodeID)
	planPos := make(map[string]int, len(rc.plan.Order))
	for i, id := range rc.plan.Order {
		planPos[id] = i
	}
	sort.SliceStable(preds, func(i, j int) bool { return planPos[preds[i]] < planPos[preds[j]] })

	var parts []string
	for _, id := range preds {
		if out, ok := rc.outputs[id]; ok && out.text != "" {
			parts = append(parts, out.text)
		}
	}
	return strings.Join(parts, "\n")
}

// knowledgeContextMissing reports whether the node has no knowledge
// predecessor, or every knowledge predecessor came back without a single
// above-threshold chunk. This is the trigger for the web-search fallback:
// search supplements missing document context, it never replaces good
// context.
func (rc *runContext) knowledgeContextMissing(nodeID string) bool {
	for _, pred := range rc.graph.Predecessors(nodeID) {
		n, ok := rc.graph.NodeByID(pred)
		if !ok || n.Type != workflow.NodeKnowledge {
			continue
		}
		if out, ok := rc.outputs[pred]; ok && len(out.chunks) > 0 {
			return false
		}
	}
	return true
}

func (e *Engine) executeInput(node workflow.Node, rc *runContext) (*nodeResult, *ExecutionError) {
	return &nodeResult{text: rc.query}, nil
}

func (e *Engine) executeKnowledge(ctx context.Context, node workflow.Node, rc *runContext) (*nodeResult, *ExecutionError) {
	cfg := node.Knowledge
	query := rc.mergedPredecessorText(node.ID)
	if query == "" {
		query = rc.query
	}

	var chunks []retrieval.Chunk
	var err error
	for attempt := 1; attempt <= e.retryAttempts; attempt++ {
		searchCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
		chunks, err = e.retrieval.Search(searchCtx, query, cfg.Collection, cfg.TopK, cfg.Threshold)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil || attempt == e.retryAttempts {
			break
		}
		delay := e.retryBase * time.Duration(1<<(attempt-1))
		log.Printf("engine: node %s search attempt %d/%d failed: %v (retrying in %s)",
			node.ID, attempt, e.retryAttempts, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	if err != nil {
		return nil, &ExecutionError{NodeID: node.ID, Kind: classifyRetrieval(ctx, err), Err: err}
	}

	res := &nodeResult{}
	var texts []string
	for _, c := range chunks {
		if c.Similarity < cfg.Threshold {
			continue
		}
		texts = append(texts, c.Content)
		res.chunks = append(res.chunks, ChunkRef{ChunkID: c.ID, Score: c.Similarity})
	}
	res.text = strings.Join(texts, "\n\n")
	if len(res.chunks) == 0 {
		res.warning = fmt.Sprintf("no chunks at or above threshold %.2f in %q", cfg.Threshold, cfg.Collection)
	}
	return res, nil
}

func (e *Engine) executeLLM(ctx context.Context, node workflow.Node, rc *runContext) (*nodeResult, *ExecutionError) {
	cfg := node.LLM
	contextText := rc.mergedPredecessorText(node.ID)

	var web []websearch.Result
	if cfg.UseWebSearch && rc.knowledgeContextMissing(node.ID) {
		results, err := e.provider.WebSearch(ctx, rc.query, e.webLimit)
		if err != nil {
			if ctx.Err() == context.Canceled {
				return nil, &ExecutionError{NodeID: node.ID, Kind: KindCancelled, Err: err}
			}
			// Search is a supplement; a failed lookup degrades to
			// generation without it.
			log.Printf("engine: node %s web search failed: %v", node.ID, err)
		}
		web = results
	}

	prompt := buildPrompt(cfg.PromptTemplate, contextText, web, rc.query)
	out, err := e.provider.Generate(ctx, string(cfg.Provider), cfg.Model, prompt, cfg.MaxTokens)
	if err != nil {
		return nil, &ExecutionError{NodeID: node.ID, Kind: classifyProvider(ctx, err), Err: err}
	}
	return &nodeResult{
		text:          out.Text,
		usage:         &out.Usage,
		webSearchUsed: len(web) > 0,
	}, nil
}

func (e *Engine) executeOutput(node workflow.Node, rc *runContext) (*nodeResult, *ExecutionError) {
	text := rc.mergedPredecessorText(node.ID)
	if node.Output.Format != workflow.FormatStructured {
		return &nodeResult{text: text}, nil
	}

	meta := struct {
		Query         string     `json:"query"`
		ContextUsed   bool       `json:"contextUsed"`
		WebSearchUsed bool       `json:"webSearchUsed"`
		Chunks        []ChunkRef `json:"retrievedChunks,omitempty"`
		TotalTokens   int        `json:"totalTokens"`
	}{Query: rc.query}
	for _, id := range rc.plan.Order {
		out, ok := rc.outputs[id]
		if !ok {
			continue
		}
		if len(out.chunks) > 0 {
			meta.ContextUsed = true
			meta.Chunks = append(meta.Chunks, out.chunks...)
		}
		if out.webSearchUsed {
			meta.WebSearchUsed = true
		}
		if out.usage != nil {
			meta.TotalTokens += out.usage.TotalTokens
		}
	}

	payload, err := json.Marshal(struct {
		Answer   string `json:"answer"`
		Metadata any    `json:"metadata"`
	}{Answer: text, Metadata: meta})
	if err != nil {
		return nil, &ExecutionError{NodeID: node.ID, Kind: KindProviderUnavailable, Err: err}
	}
	return &nodeResult{text: string(payload)}, nil
}

// buildPrompt assembles the generation prompt: preamble, knowledge context,
// numbered web results, then the user question last.
func buildPrompt(template, contextText string, web []websearch.Result, query string) string {
	var b strings.Builder
	preamble := strings.TrimSpace(template)
	if preamble == "" {
		if len(web) > 0 {
			preamble = "You are a helpful assistant. Answer using the provided context and web search results."
		} else {
			preamble = "You are a helpful assistant. Answer using the provided context when it is relevant."
		}
	}
	b.WriteString(preamble)
	b.WriteString("\n\n")
	if contextText != "" {
		b.WriteString("Context:\n")
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}
	if len(web) > 0 {
		b.WriteString("Web search results:\n")
		for i, r := range web {
			fmt.Fprintf(&b, "%d. %s — %s (%s)\n", i+1, r.Title, r.Snippet, r.Source)
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
