package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/watch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The historian's API is consumed by dashboards across origins in
	// practice; CheckOrigin beyond the default same-origin policy is
	// left to a reverse proxy in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamWatch upgrades to a websocket connection and pushes a JSON
// message for each database write the named watch observes, until
// the client disconnects. Writes that arrive while 32 messages are
// already waiting to be sent are dropped.
func (s *Server) streamWatch(c *gin.Context) {
	_, w, ok := s.lookupWatch(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Warnw("api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	msgs := make(chan watch.QueryData, 32)
	remove := w.AddHandler(watch.HandlerFunc(func(d watch.QueryData) {
		select {
		case msgs <- d:
		default:
			// slow consumer: drop the sample rather than blocking the
			// write path that produced it.
		}
	}))
	defer remove()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case d := <-msgs:
			if err := conn.WriteJSON(streamMessage{
				Path:   w.Path,
				TimeMs: d.TimeMs,
				Value:  valueView(d.Value),
			}); err != nil {
				return
			}
		}
	}
}

type streamMessage struct {
	Path   string `json:"path"`
	TimeMs int64  `json:"timeMs"`
	Value  any    `json:"value"`
}
