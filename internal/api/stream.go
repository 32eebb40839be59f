// Websocket push of engine snapshots, for dashboards that want frames
// instead of polling /state and /entropy.
package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/amphoreus/internal/engine"
)

// maxStreamConns caps concurrent websocket subscribers. The stream is a
// convenience surface for a handful of dashboards, not a fan-out bus.
const maxStreamConns = 4

// streamInterval is how often a frame is pushed to each subscriber.
const streamInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin policy does not apply to websockets; the token
		// gate below is the real access control.
		return true
	},
}

// streamFrame is one pushed update.
type streamFrame struct {
	State   engine.Snapshot `json:"state"`
	Entropy []float64       `json:"entropy_samples"`
}

var streamConns atomic.Int64

// streamToken pulls the subscriber token from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func streamToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			return auth[len(prefix):]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.StreamKey == "" {
		http.Error(w, "streaming disabled (no AMPHOREUS_STREAM_KEY set)", http.StatusForbidden)
		return
	}
	if streamToken(r) != s.StreamKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if streamConns.Load() >= maxStreamConns {
		http.Error(w, "too many stream subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	streamConns.Add(1)
	slog.Info("stream subscriber connected", "remote", r.RemoteAddr, "subscribers", streamConns.Load())

	go s.streamLoop(conn, r.RemoteAddr)
}

// streamLoop pushes frames until the subscriber goes away. The read pump
// exists only to notice disconnects.
func (s *Server) streamLoop(conn *websocket.Conn, remote string) {
	defer func() {
		conn.Close()
		streamConns.Add(-1)
		slog.Info("stream subscriber disconnected", "remote", remote)
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			frame := streamFrame{
				State:   s.Eng.ReadGlobalState(),
				Entropy: s.Eng.ReadEntropySeries(),
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
