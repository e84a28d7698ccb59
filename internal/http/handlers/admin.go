package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regscout/regscout-backend/internal/http/response"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/services"
)

type AdminHandler struct {
	log      *logger.Logger
	usage    services.UsageTracker
	feedback services.FeedbackService
	codes    services.AccessCodeService
}

func NewAdminHandler(log *logger.Logger, usage services.UsageTracker, feedback services.FeedbackService, codes services.AccessCodeService) *AdminHandler {
	return &AdminHandler{log: log, usage: usage, feedback: feedback, codes: codes}
}

// GET /admin/usage
func (h *AdminHandler) Usage(c *gin.Context) {
	records, err := h.usage.ListAll(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_usage_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"usage": records})
}

// GET /admin/feedback
func (h *AdminHandler) Feedback(c *gin.Context) {
	records, err := h.feedback.ListAll(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_feedback_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"feedback": records})
}

type generateCodeReq struct {
	Label string `json:"label"`
}

// POST /admin/codes
func (h *AdminHandler) GenerateCode(c *gin.Context) {
	var req generateCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	code, err := h.codes.Generate(c.Request.Context(), req.Label)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "generate_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"code": code})
}

// GET /admin/codes
func (h *AdminHandler) ListCodes(c *gin.Context) {
	codes, err := h.codes.List(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_codes_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"codes": codes})
}
