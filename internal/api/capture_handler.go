package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/session"
)

const (
	// writeWait is the deadline for a single websocket write.
	writeWait = 10 * time.Second

	// maxChunkBytes caps one websocket message; the full take is limited
	// separately by the session.
	maxChunkBytes = 1 << 20

	// captureEndMessage is the text frame the client sends to finish a take.
	captureEndMessage = "end"
)

// CaptureHandler accepts the websocket the browser streams recorded audio
// chunks over. Binary frames append to the session's buffered take; the
// "end" text frame assembles it into a preview.
type CaptureHandler struct {
	recordingService *service.RecordingService
	upgrader         websocket.Upgrader
	logger           *slog.Logger
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(recordingService *service.RecordingService, log *slog.Logger) *CaptureHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CaptureHandler{
		recordingService: recordingService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("component", "capture_handler")),
	}
}

// Capture handles GET /api/session/capture requests. The connection is the
// session's capture stream: opening a second one supersedes the first.
func (h *CaptureHandler) Capture(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	stream := &wsCaptureStream{conn: conn}
	if err := h.recordingService.BeginCapture(r.Context(), userID, stream); err != nil {
		log.Debug("capture rejected", "error", err, "user_id", userID)
		closeWithReason(conn, websocket.ClosePolicyViolation, GetSafeErrorMessage(err))
		_ = conn.Close()
		return
	}

	conn.SetReadLimit(maxChunkBytes)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// A close initiated through the stream means the session moved
			// on (superseded connection or finished take); only an
			// unexpected drop aborts the capture.
			if !stream.isClosed() {
				log.Debug("capture stream dropped", "error", err, "user_id", userID)
				h.recordingService.CaptureFailed(r.Context(), userID, "capture stream closed unexpectedly")
				_ = conn.Close()
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := h.recordingService.AppendChunk(r.Context(), userID, data); err != nil {
				code := websocket.ClosePolicyViolation
				if errors.Is(err, session.ErrTakeTooLarge) {
					code = websocket.CloseMessageTooBig
				}
				log.Debug("chunk rejected", "error", err, "user_id", userID)
				closeWithReason(conn, code, GetSafeErrorMessage(err))
				_ = stream.Close()
				return
			}
		case websocket.TextMessage:
			if strings.TrimSpace(string(data)) == captureEndMessage {
				// EndCapture closes the stream; the client fetches the
				// session snapshot over HTTP to pick up the preview.
				if _, err := h.recordingService.EndCapture(r.Context(), userID); err != nil {
					log.Debug("capture end rejected", "error", err, "user_id", userID)
				}
				_ = stream.Close()
				return
			}
		}
	}
}

// wsCaptureStream adapts a websocket connection to the session's capture
// stream interface. Close is idempotent and safe to call from the session
// while the read loop is blocked.
type wsCaptureStream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsCaptureStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeWithReason(s.conn, websocket.CloseNormalClosure, "")
	return s.conn.Close()
}

func (s *wsCaptureStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// closeWithReason sends a close control frame; failures are ignored since
// the connection is being torn down anyway.
func closeWithReason(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}
