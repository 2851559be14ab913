package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// progressInterval bounds how often row progress is pushed to a client.
const progressInterval = 100 * time.Millisecond

// WebSocketReconstructRequest is one reconstruction request sent as a text message. Images are
// base64 encoded.
type WebSocketReconstructRequest struct {
	Left         []byte   `json:"left"`
	Right        []byte   `json:"right"`
	Rig          string   `json:"rig"`
	MaxDisparity int      `json:"max_disparity,omitempty"`
	ZMin         *float64 `json:"z_min,omitempty"`
	ZMax         *float64 `json:"z_max,omitempty"`
	Points       bool     `json:"points,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketReconstructResponse is sent for progress, completion and errors.
type WebSocketReconstructResponse struct {
	Type      string               `json:"type"`
	Status    string               `json:"status"` // "processing", "completed", "error"
	Progress  float64              `json:"progress,omitempty"`
	Result    *ReconstructResponse `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorType string               `json:"error_type,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
}

// lockedWriter serializes writes; progress arrives from the disparity workers.
type lockedWriter struct {
	mu sync.Mutex
	w  WebSocketConnWriter
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.WriteMessage(messageType, data)
}

// wsProgress forwards pipeline progress to a client.
type wsProgress struct {
	s         *Server
	conn      WebSocketConnWriter
	requestID string
}

func (p *wsProgress) OnStart(int) {}

func (p *wsProgress) OnProgress(current, total int) {
	if total <= 0 {
		return
	}
	p.s.sendWebSocketResponse(p.conn, WebSocketReconstructResponse{
		Type:      "reconstruct_response",
		Status:    "processing",
		Progress:  float64(current) / float64(total),
		RequestID: p.requestID,
	})
}

func (p *wsProgress) OnComplete() {}

func (p *wsProgress) OnError(int, error) {}

// reconstructWebSocketHandler handles WebSocket connections for reconstructions with live
// progress.
func (s *Server) reconstructWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn)
}

// handleWebSocketConnection processes messages until the client disconnects.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	out := &lockedWriter{w: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			// a reconstruction may outlast the idle read deadline
			_ = conn.SetReadDeadline(time.Time{})
			s.handleWebSocketMessage(out, data)
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// handleWebSocketMessage runs one reconstruction request.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, data []byte) {
	var req WebSocketReconstructRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if len(req.Left) == 0 || len(req.Right) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "Both left and right images are required")
		return
	}
	if req.Rig == "" {
		s.sendWebSocketError(conn, "invalid_request", "No rig description provided")
		return
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	s.sendWebSocketResponse(conn, WebSocketReconstructResponse{
		Type:      "reconstruct_response",
		Status:    "processing",
		RequestID: requestID,
	})

	uploadSizeBytes.Observe(float64(len(req.Left) + len(req.Right)))
	scene, err := decodeScene(bytes.NewReader(req.Left), bytes.NewReader(req.Right), strings.NewReader(req.Rig))
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, "invalid_request", err.Error())
		return
	}

	rc := RequestConfig{MaxDisparity: req.MaxDisparity, ZMin: req.ZMin, ZMax: req.ZMax}
	progress := &wsProgress{s: s, conn: conn, requestID: requestID}
	res, _, err := s.run(context.Background(), scene, rc,
		pipeline.NewThrottledProgressCallback(progress, progressInterval))
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Reconstruction failed: %v", err))
		return
	}
	reconstructRequestsTotal.WithLabelValues("websocket", "success").Inc()

	body := &ReconstructResponse{Success: true, Result: res, Frame: res.Summary.Frame}
	if req.Points {
		body.Points = pointRows(res.Cloud)
	}
	s.sendWebSocketResponse(conn, WebSocketReconstructResponse{
		Type:      "reconstruct_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    body,
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketReconstructResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketReconstructResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
