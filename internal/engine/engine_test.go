package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"flowchat/internal/llm"
	"flowchat/internal/retrieval"
	"flowchat/internal/tester"
	"flowchat/internal/websearch"
	"flowchat/internal/workflow"
)

type stubProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	web      []websearch.Result
	webCalls int
	prompts  []string
}

func (s *stubProvider) Generate(ctx context.Context, provider, model, prompt string, maxTokens int) (*llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Text: s.reply, Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}}, nil
}

func (s *stubProvider) WebSearch(ctx context.Context, query string, limit int) ([]websearch.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webCalls = s.webCalls + 1
	return s.web, nil
}

func (s *stubProvider) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

type stubRetrieval struct {
	chunks []retrieval.Chunk
	err    error
	calls  int
}

func (s *stubRetrieval) Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]retrieval.Chunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

func (s *stubRetrieval) Close() error { return nil }

func linearGraph(format workflow.OutputFormat, useWebSearch bool) *workflow.Graph {
	return &workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "input-1", Type: workflow.NodeInput},
			{ID: "llm-1", Type: workflow.NodeLLM, LLM: &workflow.LLMConfig{
				Provider: workflow.ProviderOpenAI, Model: "gpt-5-nano", MaxTokens: 256, UseWebSearch: useWebSearch}},
			{ID: "output-1", Type: workflow.NodeOutput, Output: &workflow.OutputConfig{Format: format}},
		},
		Edges: []workflow.Edge{
			{Source: "input-1", Target: "llm-1"},
			{Source: "llm-1", Target: "output-1"},
		},
	}
}

func ragGraph(useWebSearch bool) *workflow.Graph {
	return &workflow.Graph{
		Nodes: []workflow.Node{
			{ID: "input-1", Type: workflow.NodeInput},
			{ID: "knowledge-1", Type: workflow.NodeKnowledge, Knowledge: &workflow.KnowledgeConfig{
				Collection: "docs", TopK: 3, Threshold: 0.7}},
			{ID: "llm-1", Type: workflow.NodeLLM, LLM: &workflow.LLMConfig{
				Provider: workflow.ProviderOpenAI, Model: "gpt-5-nano", MaxTokens: 256, UseWebSearch: useWebSearch}},
			{ID: "output-1", Type: workflow.NodeOutput, Output: &workflow.OutputConfig{Format: workflow.FormatText}},
		},
		Edges: []workflow.Edge{
			{Source: "input-1", Target: "knowledge-1"},
			{Source: "knowledge-1", Target: "llm-1"},
			{Source: "llm-1", Target: "output-1"},
		},
	}
}

func mustPlan(t *testing.T, g *workflow.Graph) *workflow.Plan {
	t.Helper()
	v, plan := workflow.NewPlanner(nil, 16).Resolve(g)
	tester.True(t, v.Valid, "graph must validate: %+v", v.Errors)
	return plan
}

func TestRunLinearPipeline(t *testing.T) {
	provider := &stubProvider{reply: "hi there"}
	e := New(provider, &stubRetrieval{})
	g := linearGraph(workflow.FormatText, false)

	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateCompleted)
	tester.Eq(t, res.Answer, "hi there")
	tester.Eq(t, len(res.Log), 3)
	for i, id := range []string{"input-1", "llm-1", "output-1"} {
		tester.Eq(t, res.Log[i].NodeID, id)
		tester.Eq(t, res.Log[i].Status, StatusSuccess)
	}
	tester.True(t, strings.Contains(provider.lastPrompt(), "Question: hello"))
}

func TestRunWebSearchFallbackOnLowConfidence(t *testing.T) {
	provider := &stubProvider{
		reply: "answered from the web",
		web:   []websearch.Result{{Title: "Go docs", Snippet: "gophers everywhere", Source: "https://go.dev"}},
	}
	store := &stubRetrieval{chunks: []retrieval.Chunk{{ID: "c1", Content: "stale text", Similarity: 0.4}}}
	e := New(provider, store)
	g := ragGraph(true)

	res := e.Run(context.Background(), g, mustPlan(t, g), "what is a gopher", nil)

	tester.Eq(t, res.State, StateCompleted)
	tester.Eq(t, provider.webCalls, 1, "empty knowledge context must trigger web search")
	tester.True(t, strings.Contains(provider.lastPrompt(), "gophers everywhere"))
	tester.False(t, strings.Contains(provider.lastPrompt(), "stale text"),
		"below-threshold chunks must not reach the prompt")

	// The knowledge entry records the empty retrieval as a warning.
	tester.Eq(t, res.Log[1].NodeID, "knowledge-1")
	tester.Eq(t, len(res.Log[1].Chunks), 0)
	tester.True(t, strings.Contains(res.Log[1].Summary, "threshold"))
}

func TestRunNoFallbackWithGoodContext(t *testing.T) {
	provider := &stubProvider{reply: "answered from docs"}
	store := &stubRetrieval{chunks: []retrieval.Chunk{{ID: "c1", Content: "gophers are rodents", Similarity: 0.92}}}
	e := New(provider, store)
	g := ragGraph(true)

	res := e.Run(context.Background(), g, mustPlan(t, g), "what is a gopher", nil)

	tester.Eq(t, res.State, StateCompleted)
	tester.Eq(t, provider.webCalls, 0, "good document context must suppress web search")
	tester.True(t, strings.Contains(provider.lastPrompt(), "gophers are rodents"))
	tester.Eq(t, len(res.Log[1].Chunks), 1)
	tester.Eq(t, res.Log[1].Chunks[0].ChunkID, "c1")
}

func TestRunProviderFailureHaltsPipeline(t *testing.T) {
	provider := &stubProvider{err: &llm.APIError{Provider: "openai", Status: 503, Body: "down"}}
	e := New(provider, &stubRetrieval{})
	g := linearGraph(workflow.FormatText, false)

	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateFailed)
	tester.Eq(t, res.Err.NodeID, "llm-1")
	tester.Eq(t, res.Err.Kind, KindProviderUnavailable)
	tester.Eq(t, len(res.Log), 2, "output must never start after a failure")
	tester.Eq(t, res.Log[1].Status, StatusFailed)
	tester.Eq(t, res.Answer, "")
}

func TestRunErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"rate limited", &llm.APIError{Provider: "openai", Status: 429}, KindRateLimited},
		{"auth failure", &llm.APIError{Provider: "openai", Status: 401}, KindAuthenticationFailed},
		{"network", context.DeadlineExceeded, KindProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(&stubProvider{err: tc.err}, &stubRetrieval{})
			g := linearGraph(workflow.FormatText, false)
			res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)
			tester.Eq(t, res.State, StateFailed)
			tester.Eq(t, res.Err.Kind, tc.want)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(&stubProvider{reply: "never"}, &stubRetrieval{})
	g := linearGraph(workflow.FormatText, false)

	res := e.Run(ctx, g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateFailed)
	tester.Eq(t, res.Err.Kind, KindCancelled)
	tester.True(t, len(res.Log) >= 1, "partial log is returned on cancellation")
}

// blockingProvider holds every generation open until the caller's context
// dies, then surfaces the context error.
type blockingProvider struct {
	stubProvider
}

func (b *blockingProvider) Generate(ctx context.Context, provider, model, prompt string, maxTokens int) (*llm.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunCallerDeadlineClassifiesAsCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e := New(&blockingProvider{}, &stubRetrieval{})
	g := linearGraph(workflow.FormatText, false)

	res := e.Run(ctx, g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateFailed)
	tester.Eq(t, res.Err.NodeID, "llm-1")
	tester.Eq(t, res.Err.Kind, KindCancelled,
		"an expired caller deadline is a cancellation, not a provider outage")
}

func TestRunRetrievalTimeoutRetriesThenFails(t *testing.T) {
	store := &stubRetrieval{err: context.DeadlineExceeded}
	e := New(&stubProvider{reply: "unused"}, store)
	e.retryBase = time.Millisecond
	g := ragGraph(false)

	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateFailed)
	tester.Eq(t, res.Err.Kind, KindRetrievalTimeout)
	tester.Eq(t, store.calls, 3, "transient retrieval failures are retried to the bound")
}

func TestRunRecordsSkippedNodes(t *testing.T) {
	g := linearGraph(workflow.FormatText, false)
	g.Nodes = append(g.Nodes, workflow.Node{ID: "llm-orphan", Type: workflow.NodeLLM,
		LLM: &workflow.LLMConfig{Provider: workflow.ProviderOpenAI, Model: "gpt-5-nano", MaxTokens: 64}})

	e := New(&stubProvider{reply: "ok"}, &stubRetrieval{})
	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)

	tester.Eq(t, res.State, StateCompleted)
	var skipped []string
	for _, entry := range res.Log {
		if entry.Status == StatusSkipped {
			skipped = append(skipped, entry.NodeID)
		}
	}
	tester.Eq(t, len(skipped), 1)
	tester.Eq(t, skipped[0], "llm-orphan")
}

func TestRunStructuredOutput(t *testing.T) {
	provider := &stubProvider{reply: "hi there"}
	e := New(provider, &stubRetrieval{})
	g := linearGraph(workflow.FormatStructured, false)

	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", nil)
	tester.Eq(t, res.State, StateCompleted)

	var out struct {
		Answer   string `json:"answer"`
		Metadata struct {
			Query       string `json:"query"`
			TotalTokens int    `json:"totalTokens"`
		} `json:"metadata"`
	}
	tester.NoErr(t, json.Unmarshal([]byte(res.Answer), &out))
	tester.Eq(t, out.Answer, "hi there")
	tester.Eq(t, out.Metadata.Query, "hello")
	tester.Eq(t, out.Metadata.TotalTokens, 7)
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	// The leading ASCII byte shifts every two-byte rune off the byte budget
	// boundary, so a byte-indexed cut would land mid-rune.
	out := &nodeResult{text: "a" + strings.Repeat("é", 150)}
	s := summarize(out)
	tester.True(t, utf8.ValidString(s), "summary must stay valid UTF-8")
	tester.True(t, strings.HasSuffix(s, "..."))

	short := &nodeResult{text: "fits"}
	tester.Eq(t, summarize(short), "fits")
}

func TestRunObserverSeesEntriesInOrder(t *testing.T) {
	e := New(&stubProvider{reply: "ok"}, &stubRetrieval{})
	g := linearGraph(workflow.FormatText, false)

	var seen []string
	res := e.Run(context.Background(), g, mustPlan(t, g), "hello", func(entry LogEntry) {
		seen = append(seen, entry.NodeID)
	})

	tester.Eq(t, res.State, StateCompleted)
	tester.Eq(t, len(seen), len(res.Log))
	for i := range seen {
		tester.Eq(t, seen[i], res.Log[i].NodeID)
	}
}
