package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

const (
	streamEventConnected ideasync.EventType = "connected"
	streamEventHeartbeat ideasync.EventType = "heartbeat"
)

type streamHello struct {
	Type           ideasync.EventType `json:"type"`
	Count          int                `json:"count"`
	Busy           bool               `json:"busy"`
	NetworkWarning bool               `json:"networkWarning"`
	Timestamp      time.Time          `json:"timestamp"`
}

// handleStream pushes activity events to a websocket client until either
// side goes away. Client messages are read only to notice the close.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.orchestrator.Hub().Subscribe(128)
	defer unsubscribe()

	hello := streamHello{
		Type:           streamEventConnected,
		Count:          s.orchestrator.Log().Len(),
		Busy:           s.orchestrator.Busy(),
		NetworkWarning: s.orchestrator.NetworkWarning(),
		Timestamp:      time.Now().UTC(),
	}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.StreamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			heartbeat := ideasync.Event{Type: streamEventHeartbeat, Timestamp: time.Now().UTC()}
			if err := wsjson.Write(ctx, conn, heartbeat); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}
