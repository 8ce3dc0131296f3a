// Package store persists workflows, chat sessions, and chat messages. It
// runs in one of two modes chosen at construction: a JSON file for local and
// test use, or Postgres when a DSN is configured. Callers see one Store type
// either way.
package store

import (
	"database/sql"
	"log"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"flowchat/internal/workflow"
)

type Store struct {
	path string
	db   *sql.DB

	loadOnce  sync.Once
	mu        sync.RWMutex
	workflows map[string]workflow.Workflow
	sessions  map[string]ChatSession
	messages  map[string][]ChatMessage

	schemaOnce sync.Once
	schemaErr  error

	// Caches the full oldest-first history per session in Postgres mode;
	// invalidated on append and delete. cacheGen counts invalidations per
	// session so a reader cannot re-cache a snapshot taken before a
	// concurrent write's invalidation.
	messageCache *lru.Cache[string, []ChatMessage]
	genMu        sync.Mutex
	cacheGen     map[string]uint64
}

// New creates a file-backed store persisting to path.
func New(path string) *Store {
	return &Store{
		path:      path,
		workflows: make(map[string]workflow.Workflow),
		sessions:  make(map[string]ChatSession),
		messages:  make(map[string][]ChatMessage),
	}
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, []ChatMessage](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, messageCache: cache, cacheGen: make(map[string]uint64)}, nil
}

// NewFromEnv returns a Postgres store when FLOWCHAT_PG_DSN is set and
// reachable, otherwise the file store at path.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("FLOWCHAT_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		log.Printf("store: postgres unavailable (%v), falling back to file store at %s", err, path)
		return New(path)
	}
	return s
}

// EnsureLoaded prepares the backend: schema creation in Postgres mode, the
// initial file read otherwise.
func (s *Store) EnsureLoaded() {
	if s == nil {
		return
	}
	if s.db != nil {
		if err := s.ensureSchema(); err != nil {
			log.Printf("store: schema setup failed: %v", err)
		}
		return
	}
	s.ensureLoadedFile()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutWorkflow inserts or replaces a workflow definition.
func (s *Store) PutWorkflow(w workflow.Workflow) error {
	if s.db != nil {
		return s.putWorkflowDB(w)
	}
	return s.putWorkflowFile(w)
}

func (s *Store) GetWorkflow(id string) (workflow.Workflow, bool) {
	if s.db != nil {
		return s.getWorkflowDB(id)
	}
	return s.getWorkflowFile(id)
}

// ListWorkflows returns every workflow, oldest first.
func (s *Store) ListWorkflows() []workflow.Workflow {
	if s.db != nil {
		return s.listWorkflowsDB()
	}
	return s.listWorkflowsFile()
}

// DeleteWorkflow removes a workflow; it reports whether it existed.
func (s *Store) DeleteWorkflow(id string) bool {
	if s.db != nil {
		return s.deleteWorkflowDB(id)
	}
	return s.deleteWorkflowFile(id)
}

// PutSession inserts a chat session record.
func (s *Store) PutSession(sess ChatSession) error {
	if s.db != nil {
		return s.putSessionDB(sess)
	}
	return s.putSessionFile(sess)
}

func (s *Store) GetSession(id string) (ChatSession, bool) {
	if s.db != nil {
		return s.getSessionDB(id)
	}
	return s.getSessionFile(id)
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(id string) bool {
	if s.db != nil {
		ok := s.deleteSessionDB(id)
		if ok {
			s.invalidateMessages(id)
		}
		return ok
	}
	return s.deleteSessionFile(id)
}

// AppendMessage adds one message to a session's history.
func (s *Store) AppendMessage(m ChatMessage) error {
	if s.db != nil {
		err := s.appendMessageDB(m)
		if err == nil {
			s.invalidateMessages(m.SessionID)
		}
		return err
	}
	return s.appendMessageFile(m)
}

// ListMessages returns the session's history oldest-first. A positive limit
// keeps only the most recent limit messages, still oldest-first.
func (s *Store) ListMessages(sessionID string, limit int) []ChatMessage {
	var history []ChatMessage
	if s.db != nil {
		if cached, ok := s.messageCache.Get(sessionID); ok {
			history = cached
		} else {
			gen := s.messageGen(sessionID)
			history = s.listMessagesDB(sessionID)
			s.cacheMessages(sessionID, gen, history)
		}
	} else {
		history = s.listMessagesFile(sessionID)
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func (s *Store) messageGen(sessionID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.cacheGen[sessionID]
}

// cacheMessages stores a history snapshot unless the session was invalidated
// after gen was read; a stale snapshot cached past a write's invalidation
// would otherwise pin outdated reads until the next write.
func (s *Store) cacheMessages(sessionID string, gen uint64, history []ChatMessage) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.cacheGen[sessionID] != gen {
		return
	}
	s.messageCache.Add(sessionID, history)
}

func (s *Store) invalidateMessages(sessionID string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.cacheGen[sessionID]++
	s.messageCache.Remove(sessionID)
}
