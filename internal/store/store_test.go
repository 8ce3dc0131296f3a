package store

import (
	"path/filepath"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowchat/internal/engine"
	"flowchat/internal/workflow"
)

func testWorkflow(id string, created time.Time) workflow.Workflow {
	return workflow.Workflow{
		ID:        id,
		Name:      "test workflow " + id,
		CreatedAt: created,
		UpdatedAt: created,
		Graph: workflow.Graph{
			Nodes: []workflow.Node{
				{ID: "input-1", Type: workflow.NodeInput},
				{ID: "output-1", Type: workflow.NodeOutput, Output: &workflow.OutputConfig{Format: workflow.FormatText}},
			},
			Edges: []workflow.Edge{{Source: "input-1", Target: "output-1"}},
		},
	}
}

func TestFileStoreWorkflowCRUD(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "flowchat.json"))
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutWorkflow(testWorkflow("wf-1", now)))
	require.NoError(t, s.PutWorkflow(testWorkflow("wf-2", now.Add(time.Second))))

	w, ok := s.GetWorkflow("wf-1")
	require.True(t, ok)
	assert.Equal(t, "test workflow wf-1", w.Name)
	assert.Len(t, w.Graph.Nodes, 2)

	list := s.ListWorkflows()
	require.Len(t, list, 2)
	assert.Equal(t, "wf-1", list[0].ID, "listing is oldest first")

	// Updating replaces in place.
	updated := testWorkflow("wf-1", now)
	updated.Name = "renamed"
	require.NoError(t, s.PutWorkflow(updated))
	w, ok = s.GetWorkflow("wf-1")
	require.True(t, ok)
	assert.Equal(t, "renamed", w.Name)

	assert.True(t, s.DeleteWorkflow("wf-2"))
	assert.False(t, s.DeleteWorkflow("wf-2"), "second delete reports missing")
	_, ok = s.GetWorkflow("wf-2")
	assert.False(t, ok)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowchat.json")
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := New(path)
	require.NoError(t, s.PutWorkflow(testWorkflow("wf-1", now)))
	require.NoError(t, s.PutSession(ChatSession{ID: "sess-1", WorkflowID: "wf-1", CreatedAt: now}))
	require.NoError(t, s.AppendMessage(ChatMessage{
		ID: "msg-1", SessionID: "sess-1", Role: RoleUser, Content: "hello", CreatedAt: now,
	}))
	require.NoError(t, s.AppendMessage(ChatMessage{
		ID: "msg-2", SessionID: "sess-1", Role: RoleAssistant, Content: "hi there",
		Log:       []engine.LogEntry{{NodeID: "llm-1", Status: engine.StatusSuccess}},
		CreatedAt: now.Add(time.Second),
	}))

	reopened := New(path)
	w, ok := reopened.GetWorkflow("wf-1")
	require.True(t, ok)
	assert.Equal(t, "wf-1", w.ID)

	sess, ok := reopened.GetSession("sess-1")
	require.True(t, ok)
	assert.Equal(t, "wf-1", sess.WorkflowID)

	msgs := reopened.ListMessages("sess-1", 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Log, 1)
	assert.Equal(t, "llm-1", msgs[1].Log[0].NodeID)
}

func TestListMessagesLimitKeepsMostRecent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "flowchat.json"))
	now := time.Now().UTC()
	require.NoError(t, s.PutSession(ChatSession{ID: "sess-1", WorkflowID: "wf-1", CreatedAt: now}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ChatMessage{
			ID: string(rune('a' + i)), SessionID: "sess-1", Role: RoleUser,
			Content: string(rune('a' + i)), CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs := s.ListMessages("sess-1", 2)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content, "limit keeps the newest messages, oldest first")
	assert.Equal(t, "e", msgs[1].Content)
}

func TestMessageCacheRejectsSnapshotFromBeforeInvalidation(t *testing.T) {
	cache, err := lru.New[string, []ChatMessage](8)
	require.NoError(t, err)
	s := &Store{messageCache: cache, cacheGen: make(map[string]uint64)}

	// A reader takes its generation, then a writer appends and invalidates
	// before the reader caches its (now stale) query result.
	gen := s.messageGen("sess-1")
	s.invalidateMessages("sess-1")
	s.cacheMessages("sess-1", gen, []ChatMessage{{ID: "stale"}})
	_, ok := cache.Get("sess-1")
	assert.False(t, ok, "a snapshot from before an invalidation must not be cached")

	// A reader that started after the invalidation caches normally.
	gen = s.messageGen("sess-1")
	s.cacheMessages("sess-1", gen, []ChatMessage{{ID: "fresh"}})
	got, ok := cache.Get("sess-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestDeleteSessionDropsHistory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "flowchat.json"))
	now := time.Now().UTC()
	require.NoError(t, s.PutSession(ChatSession{ID: "sess-1", WorkflowID: "wf-1", CreatedAt: now}))
	require.NoError(t, s.AppendMessage(ChatMessage{ID: "msg-1", SessionID: "sess-1", Role: RoleUser, CreatedAt: now}))

	require.True(t, s.DeleteSession("sess-1"))
	_, ok := s.GetSession("sess-1")
	assert.False(t, ok)
	assert.Empty(t, s.ListMessages("sess-1", 0))
}
