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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/liner/services/liner/cache"
	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatsResponse is the debug snapshot of cache and budget state.
type StatsResponse struct {
	Cache          cache.Stats `json:"cache"`
	CatalogEntries int         `json:"catalog_entries"`
	Providers      []string    `json:"providers"`
	BudgetRequests int         `json:"budget_requests_remaining"`
	BudgetCost     float64     `json:"budget_cost_remaining"`
}

// InvalidateRequest selects cache entries to drop.
type InvalidateRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`

	// All drops every entry instead of one query.
	All bool `json:"all,omitempty"`
}

// InvalidateResponse confirms a cache invalidation.
type InvalidateResponse struct {
	Invalidated string `json:"invalidated"`
}

// Handlers contains the HTTP handlers for the liner service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleResolve handles POST /v1/liner/resolve.
//
// Description:
//
//	Runs one blocking resolution and returns the ResolvedContent. The
//	pipeline is total: every valid request gets a 200, worst case the
//	honestly-labeled fallback message.
//
// Request Body:
//
//	datatypes.ResolveRequest
//
// Response:
//
//	200 OK: datatypes.ResolveResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleResolve")

	var req datatypes.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("Request validation failed", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	start := time.Now()
	content := h.svc.Resolve(c.Request.Context(), req)

	logger.Info("Resolved",
		"tier", string(content.TierOrigin),
		"confidence", string(content.Confidence),
		"sources", len(content.Sources),
		"duration_ms", time.Since(start).Milliseconds())

	c.JSON(http.StatusOK, datatypes.ResolveResponse{
		RequestID: requestID,
		Content:   content,
	})
}

// HandleResolveStream handles GET /v1/liner/resolve/stream.
//
// Description:
//
//	Streams resolution progress as Server-Sent Events. Each event is
//	enveloped with an id and a hash chained to the previous event.
//	Keepalive comments go out between events during long provider
//	fetches.
//
// Query Parameters:
//
//	title: Work title (required)
//	artist: Attributed creator (optional)
//	language: Provider language hint (optional)
//
// Response:
//
//	200 OK: text/event-stream
//	400 Bad Request: Validation error
func (h *Handlers) HandleResolveStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleResolveStream")

	var req datatypes.ResolveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("Request validation failed", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	setSSEHeaders(c.Writer)
	writer, err := newSSEWriter(c.Writer)
	if err != nil {
		logger.Error("Streaming not supported", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Streaming not supported",
			Code:  "STREAMING_UNSUPPORTED",
		})
		return
	}

	events := h.svc.Stream(c.Request.Context(), req)
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				logger.Info("Stream finished")
				return
			}
			if err := writer.WriteEvent(ev); err != nil {
				logger.Info("Client disconnected", "error", err)
				return
			}
		case <-keepalive.C:
			if err := writer.WriteKeepAlive(); err != nil {
				logger.Info("Client disconnected during keepalive", "error", err)
				return
			}
		}
	}
}

// HandleHealth handles GET /v1/liner/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: ServiceVersion})
}

// HandleReady handles GET /v1/liner/ready.
//
// Response:
//
//	200 OK: Service can answer queries
//	503 Service Unavailable: Pipeline not assembled
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "pipeline not ready",
			Code:  "NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Version: ServiceVersion})
}

// HandleCacheStats handles GET /v1/liner/cache/stats.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	requests, cost := h.svc.BudgetRemaining()
	c.JSON(http.StatusOK, StatsResponse{
		Cache:          h.svc.CacheStats(),
		CatalogEntries: h.svc.CatalogSize(),
		Providers:      h.svc.Providers(),
		BudgetRequests: requests,
		BudgetCost:     cost,
	})
}

// HandleCacheInvalidate handles POST /v1/liner/cache/invalidate.
//
// Request Body:
//
//	InvalidateRequest
//
// Response:
//
//	200 OK: InvalidateResponse
//	400 Bad Request: Neither a query nor all was given
func (h *Handlers) HandleCacheInvalidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCacheInvalidate")

	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.All {
		h.svc.ResetCache()
		logger.Info("Cache reset")
		c.JSON(http.StatusOK, InvalidateResponse{Invalidated: "all"})
		return
	}
	if datatypes.NewQuery(req.Title, req.Artist).IsEmpty() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "title or all is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	h.svc.InvalidateCache(req.Title, req.Artist)
	logger.Info("Cache entry invalidated", "title", req.Title, "artist", req.Artist)
	c.JSON(http.StatusOK, InvalidateResponse{Invalidated: "entry"})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
