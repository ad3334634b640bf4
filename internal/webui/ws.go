package webui

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same origin; tooling may connect
	// from elsewhere on the LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handlePointerWS receives pointer events from the browser and feeds
// them into the compositor, which forwards them to the selection
// protocol. One JSON message per event:
//
//	{"kind": "down", "x": 120, "y": 80, "frame_width": 640, "frame_height": 480}
func (s *Server) handlePointerWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("webui", "pointer websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	logger.Debug("webui", "pointer websocket connected from %s", r.RemoteAddr)

	for {
		var ev types.PointerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("webui", "pointer websocket read: %v", err)
			}
			return
		}

		switch ev.Kind {
		case types.PointerDown, types.PointerUp, types.PointerMove, types.PointerAltDown:
		default:
			logger.Debug("webui", "ignoring pointer event kind %q", ev.Kind)
			continue
		}

		if s.m != nil {
			s.m.PointerEvents.Add(1)
		}
		s.compositor.HandlePointer(ev)
	}
}
