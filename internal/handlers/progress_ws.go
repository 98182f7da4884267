package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth already ran; the socket carries no state worth forging.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressSocket streams pipeline events for one case over a websocket.
type ProgressSocket struct {
	store  *database.Store
	bus    *events.Bus
	logger *log.Logger
}

func NewProgressSocket(store *database.Store, bus *events.Bus) *ProgressSocket {
	return &ProgressSocket{
		store:  store,
		bus:    bus,
		logger: log.New(log.Writer(), "[PROGRESS-WS] ", log.LstdFlags),
	}
}

// Serve handles GET /cases/{case_id}/progress/ws. Each stage event is
// one JSON frame; the subscription drops frames rather than stall the
// pipeline, so clients should reconcile with the progress endpoint.
func (ps *ProgressSocket) Serve(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), ps.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ps.logger.Printf("upgrade failed for %s: %v", c.CaseID, err)
		return
	}
	defer conn.Close()

	ch, cancel := ps.bus.Subscribe(c.UUID)
	defer cancel()

	// Reader goroutine: only to detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
