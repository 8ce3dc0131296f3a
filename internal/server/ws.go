package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flowchat/internal/engine"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type streamOutbound struct {
	Type  string          `json:"type"`
	Entry engine.LogEntry `json:"entry"`
}

// handleStream upgrades to a websocket and relays the session's live
// execution-log entries until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.orch.GetSession(sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		log.Printf("server: stream set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	entries, cancel := s.orch.Broadcast().Subscribe(sessionID)
	defer cancel()

	// Reader exists only to surface close frames and keep pongs flowing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(streamOutbound{Type: "log", Entry: entry}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
