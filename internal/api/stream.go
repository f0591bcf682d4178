package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"campusnav/internal/events"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	heartbeatEvery = 15 * time.Second
	pongWait       = 60 * time.Second
	pingEvery      = 20 * time.Second
)

// streamSession serves GET /v1/sessions/{id}/events/stream as SSE.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	defer sess.stream(s.now)()
	ch := s.Broker.Subscribe(sess.ID)
	defer s.Broker.Unsubscribe(sess.ID, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: %s\n", events.TypeHeartbeat)
		fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", sess.ID, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(heartbeatEvery):
			heartbeat()
		}
	}
}

// serveLink upgrades GET /v1/sessions/{id}/ws to the session's client link.
// Session events are forwarded to the client as "event" messages.
func (s *Server) serveLink(w http.ResponseWriter, r *http.Request, sess *Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer sess.stream(s.now)()
	link := sess.Link
	link.Attach(conn)
	defer func() {
		link.Detach(conn)
		_ = conn.Close()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	ch := s.Broker.Subscribe(sess.ID)
	done := make(chan struct{})
	defer func() {
		close(done)
		s.Broker.Unsubscribe(sess.ID, ch)
	}()

	// Fanout and keepalive
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				payload, _ := json.Marshal(evt)
				if err := link.writeTo(conn, wsMessage{Type: msgEvent, Payload: payload}); err != nil {
					return
				}
			case <-ticker.C:
				link.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				link.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s: link read: %v", sess.ID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.touch(s.now())
		link.Dispatch(msg)
	}
}
