// Package session owns chat sessions: it serializes executions per session,
// bounds concurrent engine runs globally, and guarantees every send yields a
// well-formed assistant reply even when the run fails.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowchat/internal/engine"
	"flowchat/internal/store"
	"flowchat/internal/workflow"
)

var (
	ErrSessionNotFound  = errors.New("session: not found")
	ErrWorkflowNotFound = errors.New("session: workflow not found")
)

// Orchestrator drives the execution engine per incoming chat message.
//
// Concurrency model: independent sessions run in parallel up to the worker
// bound; messages for one session are strictly serialized behind its guard,
// so history order always matches send order.
type Orchestrator struct {
	store     *store.Store
	planner   *workflow.Planner
	engine    *engine.Engine
	broadcast *Broadcaster

	workers chan struct{}

	mu     sync.Mutex
	guards map[string]*sync.Mutex
}

// NewOrchestrator wires an orchestrator. maxConcurrent bounds engine runs
// across all sessions (minimum 1).
func NewOrchestrator(st *store.Store, planner *workflow.Planner, eng *engine.Engine, maxConcurrent int) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		store:     st,
		planner:   planner,
		engine:    eng,
		broadcast: NewBroadcaster(),
		workers:   make(chan struct{}, maxConcurrent),
		guards:    make(map[string]*sync.Mutex),
	}
}

// Broadcast exposes the live log stream for transport-layer subscribers.
func (o *Orchestrator) Broadcast() *Broadcaster { return o.broadcast }

// CreateSession starts a new chat session for an existing workflow.
func (o *Orchestrator) CreateSession(workflowID string) (store.ChatSession, error) {
	if _, ok := o.store.GetWorkflow(workflowID); !ok {
		return store.ChatSession{}, ErrWorkflowNotFound
	}
	sess := store.ChatSession{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.PutSession(sess); err != nil {
		return store.ChatSession{}, err
	}
	return sess, nil
}

// GetSession returns the session record.
func (o *Orchestrator) GetSession(sessionID string) (store.ChatSession, error) {
	sess, ok := o.store.GetSession(sessionID)
	if !ok {
		return store.ChatSession{}, ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession removes a session and its history.
func (o *Orchestrator) DeleteSession(sessionID string) error {
	if !o.store.DeleteSession(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

// Messages returns a session's history oldest-first.
func (o *Orchestrator) Messages(sessionID string, limit int) ([]store.ChatMessage, error) {
	if _, ok := o.store.GetSession(sessionID); !ok {
		return nil, ErrSessionNotFound
	}
	return o.store.ListMessages(sessionID, limit), nil
}

// guard returns the session's serialization lock, creating it on first use.
func (o *Orchestrator) guard(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.guards[sessionID]
	if !ok {
		g = &sync.Mutex{}
		o.guards[sessionID] = g
	}
	return g
}

// Send runs the session's workflow with content as the input value and
// returns the assistant reply. Both the user message and the assistant
// message are appended to history, in that order, before the session guard
// is released. An engine failure still produces an assistant message whose
// content is a safe summary and whose log names the failing node.
func (o *Orchestrator) Send(ctx context.Context, sessionID, content string) (store.ChatMessage, error) {
	sess, ok := o.store.GetSession(sessionID)
	if !ok {
		return store.ChatMessage{}, ErrSessionNotFound
	}

	g := o.guard(sessionID)
	g.Lock()
	defer g.Unlock()

	select {
	case o.workers <- struct{}{}:
		defer func() { <-o.workers }()
	case <-ctx.Done():
		return store.ChatMessage{}, ctx.Err()
	}

	wf, ok := o.store.GetWorkflow(sess.WorkflowID)
	if !ok {
		return store.ChatMessage{}, ErrWorkflowNotFound
	}

	userMsg := store.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      store.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.AppendMessage(userMsg); err != nil {
		return store.ChatMessage{}, err
	}

	reply := o.execute(ctx, sessionID, &wf.Graph, content)
	if err := o.store.AppendMessage(reply); err != nil {
		return store.ChatMessage{}, err
	}
	return reply, nil
}

func (o *Orchestrator) execute(ctx context.Context, sessionID string, g *workflow.Graph, query string) store.ChatMessage {
	reply := store.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      store.RoleAssistant,
	}

	validation, plan := o.planner.Resolve(g)
	if !validation.Valid {
		log.Printf("session %s: workflow failed validation with %d errors", sessionID, len(validation.Errors))
		reply.Content = "This workflow has configuration errors and cannot run. Re-validate it in the editor."
		reply.CreatedAt = time.Now().UTC()
		return reply
	}

	res := o.engine.Run(ctx, g, plan, query, func(entry engine.LogEntry) {
		o.broadcast.publish(sessionID, entry)
	})

	reply.Log = res.Log
	reply.ProcessingMs = res.DurationMs
	reply.CreatedAt = time.Now().UTC()
	if res.State == engine.StateFailed {
		reply.Content = res.Err.SafeSummary()
		return reply
	}
	reply.Content = res.Answer
	return reply
}
