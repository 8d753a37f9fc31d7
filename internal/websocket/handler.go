package websocket

import (
	"context"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/dukerupert/grocerylist/internal/model"
)

// SnapshotFunc returns the current item list for newly connected clients.
type SnapshotFunc func(ctx context.Context) []model.GroceryItem

// HandleWebSocket upgrades connections and runs them as Hub clients. Each
// client first receives a snapshot of the list.
func HandleWebSocket(hub *Hub, snapshot SnapshotFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // phones on the home LAN connect from any origin
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn)
		client.Run(r.Context(), func() Message {
			return NewSnapshot(snapshot(r.Context()))
		})
	}
}
