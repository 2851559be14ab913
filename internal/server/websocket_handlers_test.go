package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWebSocketConn records written messages.
type mockWebSocketConn struct {
	mu           sync.Mutex
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, sentMessage{messageType: messageType, data: data})
	return nil
}

func (m *mockWebSocketConn) responses(t *testing.T) []WebSocketReconstructResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WebSocketReconstructResponse, len(m.sentMessages))
	for i, msg := range m.sentMessages {
		assert.Equal(t, websocket.TextMessage, msg.messageType)
		require.NoError(t, json.Unmarshal(msg.data, &out[i]))
	}
	return out
}

func wsRequest(t *testing.T, req WebSocketReconstructRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestServer_HandleWebSocketMessage_InvalidRequests(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	fx := smallFixture(t)
	left, right := readFile(t, fx.LeftPath), readFile(t, fx.RightPath)

	tests := []struct {
		name      string
		data      []byte
		errorType string
	}{
		{"malformed json", []byte("{"), "invalid_request"},
		{"missing right image", wsRequest(t, WebSocketReconstructRequest{Left: left, Rig: "name: x"}), "invalid_request"},
		{"missing rig", wsRequest(t, WebSocketReconstructRequest{Left: left, Right: right}), "invalid_request"},
		{"malformed rig", wsRequest(t, WebSocketReconstructRequest{Left: left, Right: right, Rig: "left: [1"}), "invalid_request"},
		{"degenerate rig", wsRequest(t, WebSocketReconstructRequest{Left: left, Right: right, Rig: coincidentRig}), "processing_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockWebSocketConn{}
			s.handleWebSocketMessage(conn, tt.data)

			msgs := conn.responses(t)
			require.NotEmpty(t, msgs)
			last := msgs[len(msgs)-1]
			assert.Equal(t, "error", last.Status)
			assert.Equal(t, tt.errorType, last.ErrorType)
			assert.NotEmpty(t, last.Error)
		})
	}
}

func TestServer_HandleWebSocketMessage_Success(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	fx := smallFixture(t)

	conn := &mockWebSocketConn{}
	s.handleWebSocketMessage(conn, wsRequest(t, WebSocketReconstructRequest{
		Left:   readFile(t, fx.LeftPath),
		Right:  readFile(t, fx.RightPath),
		Rig:    string(readFile(t, fx.RigPath)),
		Points: true,
	}))

	msgs := conn.responses(t)
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, "processing", msgs[0].Status)
	assert.NotEmpty(t, msgs[0].RequestID)

	for _, m := range msgs[:len(msgs)-1] {
		assert.Equal(t, "processing", m.Status)
		assert.GreaterOrEqual(t, m.Progress, 0.0)
		assert.LessOrEqual(t, m.Progress, 1.0)
		assert.Equal(t, msgs[0].RequestID, m.RequestID)
	}

	last := msgs[len(msgs)-1]
	assert.Equal(t, "completed", last.Status)
	assert.InDelta(t, 1.0, last.Progress, 1e-12)
	require.NotNil(t, last.Result)
	require.NotNil(t, last.Result.Result)
	assert.Positive(t, last.Result.Result.Summary.Points)
	assert.Len(t, last.Result.Points, last.Result.Result.Summary.Points)
}

func TestServer_SendWebSocketError(t *testing.T) {
	s := &Server{}
	conn := &mockWebSocketConn{}
	s.sendWebSocketError(conn, "test_error", "Test error message")

	msgs := conn.responses(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0].Type)
	assert.Equal(t, "error", msgs[0].Status)
	assert.Equal(t, "test_error", msgs[0].ErrorType)
	assert.Equal(t, "Test error message", msgs[0].Error)
}

func TestReconstructWebSocket_EndToEnd(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	fx := smallFixture(t)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/reconstruct"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, wsRequest(t, WebSocketReconstructRequest{
		Left:  readFile(t, fx.LeftPath),
		Right: readFile(t, fx.RightPath),
		Rig:   string(readFile(t, fx.RigPath)),
	})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Second)))
	var final WebSocketReconstructResponse
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg WebSocketReconstructResponse
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Status != "processing" {
			final = msg
			break
		}
	}
	assert.Equal(t, "completed", final.Status, final.Error)
	require.NotNil(t, final.Result)
	assert.Equal(t, "synthetic-checkerboard", final.Result.Result.Name)
	assert.Empty(t, final.Result.Points)
}
