package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/regscout/regscout-backend/internal/agents"
	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/http/response"
	"github.com/regscout/regscout-backend/internal/orchestrator"
	pkgerrors "github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/services"
)

type ChatHandler struct {
	log    *logger.Logger
	agents *agents.Registry
	orch   *orchestrator.Orchestrator
	usage  services.UsageTracker
}

func NewChatHandler(log *logger.Logger, registry *agents.Registry, orch *orchestrator.Orchestrator, usage services.UsageTracker) *ChatHandler {
	return &ChatHandler{log: log, agents: registry, orch: orch, usage: usage}
}

// GET /api/chat/:conversation_id/stream?token=&agent=&message=
//
// Streams one conversation turn as SSE data lines, one JSON event per
// line. The token rides in the query because EventSource cannot set
// headers. Quota is checked before the turn and counted only after it
// completes, so a dropped connection does not cost a request.
func (h *ChatHandler) Stream(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userMessage := strings.TrimSpace(c.Query("message"))
	if userMessage == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_message", errors.New("message is required"))
		return
	}

	cfg, err := h.agents.Lookup(c.DefaultQuery("agent", "faa"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unknown_agent", err)
		return
	}

	claims := middleware.GetClaims(c)
	if claims == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
		return
	}
	fingerprint := claims.Fingerprint

	if !claims.IsAdmin {
		if fingerprint == "" {
			response.RespondError(c, http.StatusUnauthorized, "invalid_token", errors.New("token carries no fingerprint"))
			return
		}
		_, _, err := h.usage.CheckQuota(c.Request.Context(), fingerprint)
		if errors.Is(err, pkgerrors.ErrQuotaExceeded) {
			response.RespondError(c, http.StatusForbidden, "quota_exhausted",
				fmt.Errorf("You've used your %d daily queries. Come back tomorrow!", h.usage.Limit()))
			return
		}
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "quota_check_failed", err)
			return
		}
	}

	userID := fingerprint
	if claims.IsAdmin {
		userID = claims.Code
	}
	h.log.Info("Chat stream opened",
		"conversation_id", conversationID, "agent", cfg.Name, "user", userID, "admin", claims.IsAdmin)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("response writer does not support flushing"))
		return
	}
	flusher.Flush()

	clientGone := c.Request.Context().Done()
	emit := func(ev orchestrator.Event) bool {
		select {
		case <-clientGone:
			return false
		default:
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	err = h.orch.Run(c.Request.Context(), conversationID, userMessage, cfg, fingerprint, emit)
	if err != nil {
		h.log.Error("Conversation turn failed", "conversation_id", conversationID, "error", err)
		return
	}

	if !claims.IsAdmin {
		clientIP := services.ExtractClientIP(c.GetHeader("X-Forwarded-For"), c.Request.RemoteAddr)
		// Count against a fresh context: the turn completed even if the
		// client has already gone away.
		count, err := h.usage.Increment(context.Background(), fingerprint, c.Request.UserAgent(), clientIP)
		if err != nil {
			h.log.Warn("Failed to count request", "fingerprint", fingerprint, "error", err)
			return
		}
		remaining := h.usage.Limit() - count
		if remaining < 0 {
			remaining = 0
		}
		quota, _ := json.Marshal(gin.H{
			"type":               "quota_update",
			"requests_used":      count,
			"requests_remaining": remaining,
		})
		if _, err := fmt.Fprintf(w, "data: %s\n\n", quota); err == nil {
			flusher.Flush()
		}
	}
}
