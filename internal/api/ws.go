// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/waypointd/internal/logging"
)

const (
	// statusPushInterval is how often the current status is pushed to
	// connected websocket clients.
	statusPushInterval = 2 * time.Second

	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control surface binds to loopback; cross-origin browser access
	// is governed by the CORS origin list.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusWS handles GET /api/v1/status/ws. It upgrades the connection and
// pushes a status snapshot every statusPushInterval until the client
// disconnects.
func (h *Handler) StatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	logging.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Status websocket connected")

	// Reader goroutine drains control frames and detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pushTicker := time.NewTicker(statusPushInterval)
	defer pushTicker.Stop()
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	// Send an immediate snapshot so clients render without waiting a tick.
	if err := h.pushStatus(conn, r); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-pushTicker.C:
			if err := h.pushStatus(conn, r); err != nil {
				logging.Debug().Err(err).Msg("Status websocket write failed")
				return
			}
		}
	}
}

func (h *Handler) pushStatus(conn *websocket.Conn, r *http.Request) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(h.snapshot(r))
}
