package server

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/bmharper/cimg/v2"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/server/monitor"
)

// Sent by the server for every processed frame.
// SYNC-CAMERA-WEBSOCKET-MESSAGE
type cameraWebSocketMsg struct {
	Type  string `json:"type"` // "frame" or "error"
	Error string `json:"error,omitempty"`
	frameJSON
	Image string `json:"image,omitempty"` // base64 JPEG of the annotated frame
}

// httpCameraWebSocket is the live camera loop. The client sends one frame per
// message (binary JPEG, or the base64 of one as text), and receives the
// annotated frame plus the compliance state back. Each connection is its own
// session, so the alarm debounces per camera and clears when the camera
// disconnects.
func (s *Server) httpCameraWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("Camera websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	s.Log.Infof("Camera websocket connected from %v", r.RemoteAddr)

	session := s.monitor.StartSession()
	defer session.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Log.Infof("Camera websocket closed: %v", err)
			}
			return
		}
		if msgType == websocket.TextMessage {
			decoded, err := base64.StdEncoding.DecodeString(string(data))
			if err != nil {
				s.sendCameraError(conn, "Invalid base64 frame")
				continue
			}
			data = decoded
		}
		img, err := cimg.Decompress(data)
		if err != nil {
			s.sendCameraError(conn, "Failed to decode frame")
			continue
		}
		result, err := session.ProcessFrame(r.Context(), img, monitor.ProcessOptions{Annotate: true})
		if errors.Is(err, nn.ErrDetectionFailed) {
			s.sendCameraError(conn, "Detection failed, frame skipped")
			continue
		} else if err != nil {
			return
		}
		jpg, err := cimg.Compress(result.Annotated, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
		if err != nil {
			s.Log.Errorf("Failed to compress annotated frame: %v", err)
			return
		}
		msg := cameraWebSocketMsg{
			Type:      "frame",
			frameJSON: toFrameJSON(result),
			Image:     base64.StdEncoding.EncodeToString(jpg),
		}
		if err := conn.WriteJSON(&msg); err != nil {
			return
		}
	}
}

func (s *Server) sendCameraError(conn *websocket.Conn, message string) {
	msg := cameraWebSocketMsg{Type: "error", Error: message}
	if err := conn.WriteJSON(&msg); err != nil {
		s.Log.Warnf("Camera websocket write failed: %v", err)
	}
}
