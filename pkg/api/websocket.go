package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	msgClassify = "classify"
	msgPing     = "ping"
	msgResult   = "emotion_result"
	msgPong     = "pong"
	msgError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage is both the request and reply frame on /ws. Data holds
// one complete recording, base64 encoded on the wire.
type WebSocketMessage struct {
	Type   string `json:"type"`
	Data   []byte `json:"data,omitempty"`
	Result any    `json:"result,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WebSocket handles GET /ws. Messages on one connection are processed in
// order; each classify message gets exactly one reply.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// base64 inflates by 4/3; leave headroom for the JSON envelope.
	conn.SetReadLimit(h.maxUpload/3*4 + 4096)

	ctx := r.Context()
	reqID := RequestIDFrom(ctx)
	h.log.Debug("websocket connected", zap.String("request_id", reqID))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("websocket read failed", zap.String("request_id", reqID), zap.Error(err))
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.sendMessage(conn, WebSocketMessage{
				Type:  msgError,
				Code:  "INVALID_REQUEST",
				Error: "invalid message",
			})
			continue
		}

		switch msg.Type {
		case msgClassify:
			h.handleClassify(conn, r, &msg)
		case msgPing:
			h.sendMessage(conn, WebSocketMessage{Type: msgPong})
		default:
			h.sendMessage(conn, WebSocketMessage{
				Type:  msgError,
				Code:  "INVALID_REQUEST",
				Error: "unknown message type",
			})
		}
	}
}

func (h *Handlers) handleClassify(conn *websocket.Conn, r *http.Request, msg *WebSocketMessage) {
	if len(msg.Data) == 0 {
		h.sendMessage(conn, WebSocketMessage{
			Type:  msgError,
			Code:  "INVALID_REQUEST",
			Error: errEmptyFile.Error(),
		})
		return
	}

	resp, err := h.classifier.Submit(r.Context(), msg.Data)
	if err != nil {
		mapped := MapError(err)
		h.log.Warn("websocket classify failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("code", mapped.Code),
			zap.Error(err),
		)
		h.sendMessage(conn, WebSocketMessage{
			Type:  msgError,
			Code:  mapped.Code,
			Error: mapped.Message,
		})
		return
	}

	h.sendMessage(conn, WebSocketMessage{Type: msgResult, Result: resp})
}

func (h *Handlers) sendMessage(conn *websocket.Conn, msg WebSocketMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("websocket write failed", zap.Error(err))
	}
}
