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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all liner routes with the router.
//
// Description:
//
//	Registers all /v1/liner/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Core Endpoints:
//
//	POST /v1/liner/resolve - One-shot resolution
//	GET  /v1/liner/resolve/stream - SSE event stream
//	GET  /v1/liner/ws - WebSocket event stream
//
// Health Endpoints:
//
//	GET  /v1/liner/health - Health check
//	GET  /v1/liner/ready - Readiness check
//
// Debug Endpoints:
//
//	GET  /v1/liner/cache/stats - Cache, catalog, and budget snapshot
//	POST /v1/liner/cache/invalidate - Drop one or all cached entries
//
// Example:
//
//	service, _ := liner.NewService(cfg, logger)
//	handlers := liner.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	liner.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	liner := rg.Group("/liner")
	{
		// Resolution
		liner.POST("/resolve", handlers.HandleResolve)
		liner.GET("/resolve/stream", handlers.HandleResolveStream)
		liner.GET("/ws", handlers.HandleWS)

		// Health checks
		liner.GET("/health", handlers.HandleHealth)
		liner.GET("/ready", handlers.HandleReady)

		// Debug
		cache := liner.Group("/cache")
		{
			cache.GET("/stats", handlers.HandleCacheStats)
			cache.POST("/invalidate", handlers.HandleCacheInvalidate)
		}
	}
}
