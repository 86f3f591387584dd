package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/moodcam/internal/domain/types"
	"github.com/okian/moodcam/pkg/logger"
	"github.com/okian/moodcam/pkg/metrics"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamDependencies defines the snapshot pushed to stream clients.
type StreamDependencies interface {
	Stream(ctx context.Context) types.StreamMessage
}

// StreamHandler pushes the overlay and latest samples over a websocket.
type StreamHandler struct {
	deps     StreamDependencies
	interval time.Duration
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewStreamHandler creates a new stream handler pushing every interval.
func NewStreamHandler(deps StreamDependencies, interval time.Duration, l logger.Logger) *StreamHandler {
	return &StreamHandler{
		deps:     deps,
		interval: interval,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		logger:   l,
	}
}

// HandleStream handles GET /ws. Only overlays newer than the last one sent are pushed.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.RecordErrorByEndpoint("ws", r.Method, "upgrade")
		return
	}
	defer conn.Close()
	metrics.RecordHTTPRequest("ws", r.Method, "101")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The server read timeout also applies to the hijacked connection; pongs extend it.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Drain client frames so close and pong control messages are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := time.NewTicker(h.interval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var lastSeq uint64
	send := func() error {
		msg := h.deps.Stream(ctx)
		if msg.Overlay != nil && msg.Overlay.Seq == lastSeq {
			return nil
		}
		if msg.Overlay != nil {
			lastSeq = msg.Overlay.Seq
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case <-push.C:
			if err := send(); err != nil {
				h.logger.Debug(ctx, "stream client gone", logger.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
