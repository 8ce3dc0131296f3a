// Package engine runs a planned workflow graph node by node against live
// external services, accumulating per-node outputs and a structured
// execution log. Failures are classified and halt the pipeline; the partial
// log is always returned.
package engine

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"flowchat/internal/llm"
	"flowchat/internal/retrieval"
	"flowchat/internal/websearch"
	"flowchat/internal/workflow"
)

// ProviderGateway is the language-model surface the LLM executor talks to.
// *llm.Gateway implements it; tests use stubs.
type ProviderGateway interface {
	Generate(ctx context.Context, provider, model, prompt string, maxTokens int) (*llm.Result, error)
	WebSearch(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

// Engine executes planned graphs. It is stateless across runs and safe for
// concurrent use; all per-run state lives in the run's context.
type Engine struct {
	provider  ProviderGateway
	retrieval retrieval.Gateway

	searchTimeout time.Duration
	retryAttempts int
	retryBase     time.Duration
	webLimit      int
}

// New wires an engine over the provider and retrieval gateways.
func New(provider ProviderGateway, store retrieval.Gateway) *Engine {
	return &Engine{
		provider:      provider,
		retrieval:     store,
		searchTimeout: 30 * time.Second,
		retryAttempts: 3,
		retryBase:     300 * time.Millisecond,
		webLimit:      5,
	}
}

// Run executes the plan's nodes in order with query as the input node's
// value. observe, when non-nil, is called with each log entry as it is
// produced, enabling live streaming; it runs on the engine's goroutine and
// must not block.
//
// The run advances Planned -> Running -> Completed or Failed. A node failure
// stops the pipeline immediately; downstream nodes never start and the
// result carries the log accumulated so far.
func (e *Engine) Run(ctx context.Context, g *workflow.Graph, plan *workflow.Plan, query string, observe func(LogEntry)) *Result {
	start := time.Now()
	rc := &runContext{
		query:   query,
		outputs: make(map[string]*nodeResult, len(plan.Order)),
		plan:    plan,
		graph:   g,
	}
	res := &Result{State: StateRunning, Log: make([]LogEntry, 0, len(plan.Order)+len(plan.Skipped))}

	record := func(entry LogEntry) {
		res.Log = append(res.Log, entry)
		if observe != nil {
			observe(entry)
		}
	}

	var terminal string
	for _, id := range plan.Order {
		node, ok := g.NodeByID(id)
		if !ok {
			continue // plan and graph derive from the same version; unreachable
		}

		nodeStart := time.Now()
		if err := ctx.Err(); err != nil {
			execErr := &ExecutionError{NodeID: id, Kind: KindCancelled, Err: err}
			record(LogEntry{NodeID: id, StartedAt: nodeStart, Status: StatusFailed, ErrorKind: execErr.Kind})
			return e.fail(res, execErr, start, plan, record)
		}

		var out *nodeResult
		var execErr *ExecutionError
		switch node.Type {
		case workflow.NodeInput:
			out, execErr = e.executeInput(node, rc)
		case workflow.NodeKnowledge:
			out, execErr = e.executeKnowledge(ctx, node, rc)
		case workflow.NodeLLM:
			out, execErr = e.executeLLM(ctx, node, rc)
		case workflow.NodeOutput:
			out, execErr = e.executeOutput(node, rc)
		}

		elapsed := time.Since(nodeStart)
		if execErr != nil {
			log.Printf("engine: node %s failed after %s: %v", id, elapsed.Round(time.Millisecond), execErr)
			record(LogEntry{
				NodeID:     id,
				StartedAt:  nodeStart,
				DurationMs: elapsed.Milliseconds(),
				Status:     StatusFailed,
				ErrorKind:  execErr.Kind,
			})
			return e.fail(res, execErr, start, plan, record)
		}

		rc.outputs[id] = out
		record(LogEntry{
			NodeID:     id,
			StartedAt:  nodeStart,
			DurationMs: elapsed.Milliseconds(),
			Status:     StatusSuccess,
			Summary:    summarize(out),
			Chunks:     out.chunks,
			Usage:      out.usage,
		})
		if node.Type == workflow.NodeOutput {
			terminal = out.text
		}
	}

	recordSkipped(plan, record)
	res.State = StateCompleted
	res.Answer = terminal
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

func (e *Engine) fail(res *Result, execErr *ExecutionError, start time.Time, plan *workflow.Plan, record func(LogEntry)) *Result {
	recordSkipped(plan, record)
	res.State = StateFailed
	res.Err = execErr
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

func recordSkipped(plan *workflow.Plan, record func(LogEntry)) {
	for _, id := range plan.Skipped {
		record(LogEntry{NodeID: id, StartedAt: time.Now(), Status: StatusSkipped,
			Summary: "unreachable from the input node"})
	}
}

// summarize trims a node's output to a log-sized excerpt; warnings win over
// text so empty retrievals stay visible.
func summarize(out *nodeResult) string {
	if out.warning != "" {
		return out.warning
	}
	s := strings.TrimSpace(out.text)
	const max = 120
	if len(s) > max {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
