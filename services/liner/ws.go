// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package liner

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsHello is the first frame on a new connection.
type wsHello struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	Version   string `json:"version"`
}

// HandleWS handles GET /v1/liner/ws.
//
// Description:
//
//	Upgrades to a WebSocket and serves one resolution per inbound
//	request frame, writing the same typed events as the SSE endpoint.
//	The connection stays open for further requests; a client
//	disconnect cancels the in-flight resolution.
//
// Wire Protocol:
//
//	client -> server: datatypes.ResolveRequest as JSON
//	server -> client: stream.Event frames, ending with complete|error
func (h *Handlers) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	sessionID := uuid.NewString()
	logger := slog.With("session_id", sessionID, "handler", "HandleWS")
	logger.Info("Websocket client connected")

	if err := ws.WriteJSON(wsHello{
		Action:    "session_created",
		SessionID: sessionID,
		Version:   ServiceVersion,
	}); err != nil {
		logger.Warn("Failed to send session frame", "error", err)
		return
	}

	for {
		var req datatypes.ResolveRequest
		if err := ws.ReadJSON(&req); err != nil {
			logger.Info("Websocket client disconnected", "error", err.Error())
			return
		}

		if !h.streamOverWS(c.Request.Context(), ws, req, logger) {
			return
		}
	}
}

// streamOverWS runs one resolution and forwards its events. Returns
// false when the connection is no longer usable.
func (h *Handlers) streamOverWS(parent context.Context, ws *websocket.Conn,
	req datatypes.ResolveRequest, logger *slog.Logger) bool {

	// A write failure cancels the pipeline instead of letting it run for
	// a dead connection.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	for ev := range h.svc.Stream(ctx, req) {
		if err := ws.WriteJSON(ev); err != nil {
			logger.Info("Websocket write failed, dropping resolution", "error", err)
			cancel()
			return false
		}
		if ev.Type == stream.TypeComplete || ev.Type == stream.TypeError {
			logger.Info("Websocket resolution finished", "terminal", string(ev.Type))
		}
	}
	return true
}
