package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ringguard/ringguard/pkg/types"
)

// sendTimeout bounds one notification write. A receiver that cannot accept
// a small JSON frame within this window is treated as gone.
const sendTimeout = 5 * time.Second

// wsSink adapts a websocket connection to the registry's delivery interface.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, n types.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, data)
}

// handleNotifications upgrades the request to a websocket and binds it as
// the call participant's notification target. The socket stays registered
// until the client closes it; a failed push also unbinds it, so a dead
// receiver never accumulates retries.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	role := types.Role(r.URL.Query().Get("role"))
	if !role.IsValid() {
		writeError(w, http.StatusBadRequest, "role must be caller or receiver")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed",
			"call_id", callID,
			"error", err)
		return
	}

	sink := &wsSink{conn: conn}
	if err := s.registry.Register(callID, role, sink); err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	s.metrics.ActiveConnections.Add(r.Context(), 1)
	slog.Info("notification socket registered",
		"call_id", callID,
		"role", role)

	// Block reading until the client goes away. Inbound frames carry no
	// meaning on this socket and are discarded.
	readCtx := r.Context()
	for {
		if _, _, err := conn.Read(readCtx); err != nil {
			break
		}
	}

	s.registry.Unregister(callID, role, sink)
	s.metrics.ActiveConnections.Add(context.Background(), -1)
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("notification socket closed",
		"call_id", callID,
		"role", role)
}
