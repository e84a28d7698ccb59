package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/http/response"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/services"
)

type FeedbackHandler struct {
	log      *logger.Logger
	feedback services.FeedbackService
}

func NewFeedbackHandler(log *logger.Logger, feedback services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{log: log, feedback: feedback}
}

type feedbackReq struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Logs      []map[string]any  `json:"logs"`
	UserAgent string            `json:"userAgent"`
	Contact   *services.Contact `json:"contact"`
}

// POST /feedback/submit
func (h *FeedbackHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
		return
	}
	fingerprint := claims.Fingerprint
	if fingerprint == "" {
		fingerprint = "unknown"
	}

	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	switch req.Type {
	case "bug", "feature", "other":
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_type",
			errors.New("invalid feedback type, must be one of: bug, feature, other"))
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_message", errors.New("message is required"))
		return
	}

	id, err := h.feedback.Submit(c.Request.Context(), fingerprint, req.Type, message, req.Logs, req.UserAgent, req.Contact)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}

	response.RespondOK(c, gin.H{
		"id":      id.String(),
		"message": "Thank you for your feedback!",
	})
}
