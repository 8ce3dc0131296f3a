// Package server exposes the REST/JSON boundary: workflow CRUD and
// validation, chat sessions, message sending, and a websocket stream of live
// execution logs.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowchat/internal/session"
	"flowchat/internal/store"
	"flowchat/internal/workflow"
)

type Server struct {
	store   *store.Store
	planner *workflow.Planner
	orch    *session.Orchestrator
}

func New(st *store.Store, planner *workflow.Planner, orch *session.Orchestrator) *Server {
	return &Server{store: st, planner: planner, orch: orch}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /api/workflows/validate", s.handleValidate)

	mux.HandleFunc("POST /api/chat/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/chat/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/chat/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/chat/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/chat/sessions/{id}/stream", s.handleStream)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type workflowRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Graph       workflow.Graph `json:"graph"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var in workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	now := time.Now().UTC()
	wf := workflow.Workflow{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Graph:       in.Graph,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutWorkflow(wf); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save workflow")
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListWorkflows())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.store.GetWorkflow(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.store.GetWorkflow(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	var in workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if in.Name != "" {
		wf.Name = in.Name
	}
	wf.Description = in.Description
	wf.Graph = in.Graph
	wf.UpdatedAt = time.Now().UTC()
	if err := s.store.PutWorkflow(wf); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save workflow")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteWorkflow(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateResponse is the editor-facing validation surface: findings plus
// the execution order the planner would use.
type validateResponse struct {
	IsValid        bool             `json:"isValid"`
	Errors         []workflow.Issue `json:"errors"`
	Warnings       []workflow.Issue `json:"warnings"`
	ExecutionOrder []string         `json:"executionOrder"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Graph workflow.Graph `json:"graph"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	validation, plan := s.planner.Resolve(&in.Graph)
	out := validateResponse{
		IsValid:        validation.Valid,
		Errors:         validation.Errors,
		Warnings:       validation.Warnings,
		ExecutionOrder: []string{},
	}
	if plan != nil {
		out.ExecutionOrder = plan.Order
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		WorkflowID string `json:"workflowId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sess, err := s.orch.CreateSession(in.WorkflowID)
	if err != nil {
		if errors.Is(err, session.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteSession(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}
	msgs, err := s.orch.Messages(r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, err := s.orch.Send(r.Context(), r.PathValue("id"), in.Message)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrWorkflowNotFound):
			writeError(w, http.StatusNotFound, "workflow not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to process message")
		}
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
