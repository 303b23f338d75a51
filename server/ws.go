package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventStreamBuffer = 64
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// streamEvents sends the recent events of a panel, then every new one until the client
// disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPanel(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lggr.Warnw("WebSocket upgrade failed", "panel", p.Key(), "error", err)
		return
	}
	defer conn.Close()

	backlog, events, release := p.Events().SubscribeWithBacklog(eventStreamBuffer)
	defer release()

	s.lggr.Debugw("WebSocket client connected", "panel", p.Key())

	// Reading is only needed to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, e := range backlog {
		if err := writeJSON(conn, e); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeJSON(conn, e); err != nil {
				s.lggr.Debugw("WebSocket write failed", "panel", p.Key(), "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}

	return conn.WriteJSON(v)
}
