package store

import (
	"encoding/json"
	"log"
	"os"
	"sort"

	"flowchat/internal/workflow"
)

// fileState is the on-disk shape of the file backend: one JSON document
// holding everything.
type fileState struct {
	Workflows []workflow.Workflow `json:"workflows"`
	Sessions  []ChatSession       `json:"sessions"`
	Messages  []ChatMessage       `json:"messages"`
}

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		data, err := os.ReadFile(s.path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("store: failed to read %s: %v", s.path, err)
			}
			return
		}
		var state fileState
		if err := json.Unmarshal(data, &state); err != nil {
			log.Printf("store: failed to parse %s: %v", s.path, err)
			return
		}
		for _, w := range state.Workflows {
			s.workflows[w.ID] = w
		}
		for _, sess := range state.Sessions {
			s.sessions[sess.ID] = sess
		}
		for _, m := range state.Messages {
			s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
		}
		for id := range s.messages {
			msgs := s.messages[id]
			sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
			s.messages[id] = msgs
		}
	})
}

func (s *Store) saveLocked() error {
	state := fileState{
		Workflows: make([]workflow.Workflow, 0, len(s.workflows)),
		Sessions:  make([]ChatSession, 0, len(s.sessions)),
	}
	for _, w := range s.workflows {
		state.Workflows = append(state.Workflows, w)
	}
	sort.Slice(state.Workflows, func(i, j int) bool {
		return state.Workflows[i].CreatedAt.Before(state.Workflows[j].CreatedAt)
	})
	for _, sess := range s.sessions {
		state.Sessions = append(state.Sessions, sess)
	}
	sort.Slice(state.Sessions, func(i, j int) bool {
		return state.Sessions[i].CreatedAt.Before(state.Sessions[j].CreatedAt)
	})
	for _, msgs := range s.messages {
		state.Messages = append(state.Messages, msgs...)
	}
	sort.SliceStable(state.Messages, func(i, j int) bool {
		return state.Messages[i].CreatedAt.Before(state.Messages[j].CreatedAt)
	})

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *Store) putWorkflowFile(w workflow.Workflow) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	return s.saveLocked()
}

func (s *Store) getWorkflowFile(id string) (workflow.Workflow, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	return w, ok
}

func (s *Store) listWorkflowsFile() []workflow.Workflow {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) deleteWorkflowFile(id string) bool {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return false
	}
	delete(s.workflows, id)
	_ = s.saveLocked()
	return true
}

func (s *Store) putSessionFile(sess ChatSession) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return s.saveLocked()
}

func (s *Store) getSessionFile(id string) (ChatSession, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) deleteSessionFile(id string) bool {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	_ = s.saveLocked()
	return true
}

func (s *Store) appendMessageFile(m ChatMessage) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return s.saveLocked()
}

func (s *Store) listMessagesFile(sessionID string) []ChatMessage {
	s.ensureLoadedFile()
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
