package store

import (
	"encoding/json"
	"log"

	"flowchat/internal/engine"
	"flowchat/internal/workflow"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS workflows (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  graph JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_sessions (
  id TEXT PRIMARY KEY,
  workflow_id TEXT NOT NULL REFERENCES workflows (id) ON DELETE CASCADE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  execution_log JSONB,
  processing_ms BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_workflow_id ON chat_sessions (workflow_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages (session_id, created_at);
`)
	})
	return s.schemaErr
}

func (s *Store) putWorkflowDB(w workflow.Workflow) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	graph, err := json.Marshal(w.Graph)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO workflows (id, name, description, graph, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id)
DO UPDATE SET name=EXCLUDED.name,
  description=EXCLUDED.description,
  graph=EXCLUDED.graph,
  updated_at=EXCLUDED.updated_at`,
		w.ID, w.Name, w.Description, graph, w.CreatedAt, w.UpdatedAt)
	return err
}

func (s *Store) getWorkflowDB(id string) (workflow.Workflow, bool) {
	if err := s.ensureSchema(); err != nil {
		return workflow.Workflow{}, false
	}
	row := s.db.QueryRow(`SELECT id, name, description, graph, created_at, updated_at
FROM workflows WHERE id = $1`, id)

	var w workflow.Workflow
	var graph []byte
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &graph, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return workflow.Workflow{}, false
	}
	if err := json.Unmarshal(graph, &w.Graph); err != nil {
		log.Printf("store: workflow %s has an unreadable graph: %v", id, err)
		return workflow.Workflow{}, false
	}
	return w, true
}

func (s *Store) listWorkflowsDB() []workflow.Workflow {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT id, name, description, graph, created_at, updated_at
FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := make([]workflow.Workflow, 0, 32)
	for rows.Next() {
		var w workflow.Workflow
		var graph []byte
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &graph, &w.CreatedAt, &w.UpdatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal(graph, &w.Graph); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out
}

func (s *Store) deleteWorkflowDB(id string) bool {
	if err := s.ensureSchema(); err != nil {
		return false
	}
	res, err := s.db.Exec(`DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) putSessionDB(sess ChatSession) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
INSERT INTO chat_sessions (id, workflow_id, created_at)
VALUES ($1,$2,$3)
ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.WorkflowID, sess.CreatedAt)
	return err
}

func (s *Store) getSessionDB(id string) (ChatSession, bool) {
	if err := s.ensureSchema(); err != nil {
		return ChatSession{}, false
	}
	row := s.db.QueryRow(`SELECT id, workflow_id, created_at FROM chat_sessions WHERE id = $1`, id)
	var sess ChatSession
	if err := row.Scan(&sess.ID, &sess.WorkflowID, &sess.CreatedAt); err != nil {
		return ChatSession{}, false
	}
	return sess, true
}

func (s *Store) deleteSessionDB(id string) bool {
	if err := s.ensureSchema(); err != nil {
		return false
	}
	res, err := s.db.Exec(`DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) appendMessageDB(m ChatMessage) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	var execLog []byte
	if len(m.Log) > 0 {
		var err error
		execLog, err = json.Marshal(m.Log)
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`
INSERT INTO chat_messages (id, session_id, role, content, execution_log, processing_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.SessionID, string(m.Role), m.Content, execLog, m.ProcessingMs, m.CreatedAt)
	return err
}

func (s *Store) listMessagesDB(sessionID string) []ChatMessage {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`
SELECT id, session_id, role, content, execution_log, processing_ms, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at`, sessionID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var role string
		var execLog []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &execLog, &m.ProcessingMs, &m.CreatedAt); err != nil {
			continue
		}
		m.Role = Role(role)
		if len(execLog) > 0 {
			var entries []engine.LogEntry
			if err := json.Unmarshal(execLog, &entries); err == nil {
				m.Log = entries
			}
		}
		out = append(out, m)
	}
	return out
}
