package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-affect/pkg/audio"
	"speech-affect/pkg/models"
)

type wsReply struct {
	Type   string                  `json:"type"`
	Result *models.EmotionResponse `json:"result"`
	Code   string                  `json:"code"`
	Error  string                  `json:"error"`
}

func dialWS(t *testing.T, cl Classifier) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewHandlers(cl, Options{}), prometheus.NewRegistry(), nil))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg any) wsReply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestWebSocket(t *testing.T) {
	t.Run("classify returns the emotion result", func(t *testing.T) {
		cl := &stubClassifier{resp: positiveResponse()}
		conn := dialWS(t, cl)

		reply := roundTrip(t, conn, WebSocketMessage{Type: "classify", Data: []byte("RIFF-bytes")})

		assert.Equal(t, "emotion_result", reply.Type)
		require.NotNil(t, reply.Result)
		assert.Equal(t, models.Positive, reply.Result.Label)
		assert.Equal(t, []byte("RIFF-bytes"), cl.got.Load())
	})

	t.Run("base64 payload from a raw client", func(t *testing.T) {
		cl := &stubClassifier{resp: positiveResponse()}
		conn := dialWS(t, cl)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"classify","data":"aGVsbG8="}`)))
		var reply wsReply
		require.NoError(t, conn.ReadJSON(&reply))

		assert.Equal(t, "emotion_result", reply.Type)
		assert.Equal(t, []byte("hello"), cl.got.Load())
	})

	t.Run("several messages on one connection", func(t *testing.T) {
		cl := &stubClassifier{resp: positiveResponse()}
		conn := dialWS(t, cl)

		for i := 0; i < 3; i++ {
			reply := roundTrip(t, conn, WebSocketMessage{Type: "classify", Data: []byte("x")})
			assert.Equal(t, "emotion_result", reply.Type)
		}
		assert.Equal(t, int32(3), cl.calls.Load())
	})

	t.Run("ping", func(t *testing.T) {
		conn := dialWS(t, &stubClassifier{})

		reply := roundTrip(t, conn, WebSocketMessage{Type: "ping"})

		assert.Equal(t, "pong", reply.Type)
	})

	t.Run("classify failure is mapped", func(t *testing.T) {
		conn := dialWS(t, &stubClassifier{err: audio.ErrUnsupportedAudio})

		reply := roundTrip(t, conn, WebSocketMessage{Type: "classify", Data: []byte("x")})

		assert.Equal(t, "error", reply.Type)
		assert.Equal(t, "UNSUPPORTED_AUDIO", reply.Code)
		assert.Nil(t, reply.Result)
	})

	t.Run("empty data", func(t *testing.T) {
		cl := &stubClassifier{}
		conn := dialWS(t, cl)

		reply := roundTrip(t, conn, WebSocketMessage{Type: "classify"})

		assert.Equal(t, "error", reply.Type)
		assert.Equal(t, "INVALID_REQUEST", reply.Code)
		assert.Equal(t, int32(0), cl.calls.Load())
	})

	t.Run("unknown type keeps the connection open", func(t *testing.T) {
		conn := dialWS(t, &stubClassifier{})

		reply := roundTrip(t, conn, WebSocketMessage{Type: "audio_chunk"})
		assert.Equal(t, "error", reply.Type)

		reply = roundTrip(t, conn, WebSocketMessage{Type: "ping"})
		assert.Equal(t, "pong", reply.Type)
	})

	t.Run("malformed json", func(t *testing.T) {
		conn := dialWS(t, &stubClassifier{})

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":`)))
		var reply wsReply
		require.NoError(t, conn.ReadJSON(&reply))

		assert.Equal(t, "error", reply.Type)
		assert.Equal(t, "invalid message", reply.Error)
	})
}
