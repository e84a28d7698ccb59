package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/regscout/regscout-backend/internal/http/response"
	pkgerrors "github.com/regscout/regscout-backend/internal/pkg/errors"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/services"
)

// Visitor IDs shorter than this are either corrupt or forged.
const minVisitorIDLength = 10

type AuthHandler struct {
	log   *logger.Logger
	auth  services.AuthService
	usage services.UsageTracker
	codes services.AccessCodeService
}

func NewAuthHandler(log *logger.Logger, auth services.AuthService, usage services.UsageTracker, codes services.AccessCodeService) *AuthHandler {
	return &AuthHandler{log: log, auth: auth, usage: usage, codes: codes}
}

type fingerprintReq struct {
	VisitorID string `json:"visitor_id"`
}

// POST /auth/fingerprint
//
// Issues a daily token for a browser fingerprint, rejecting visitors
// whose quota is already spent.
func (h *AuthHandler) Fingerprint(c *gin.Context) {
	var req fingerprintReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	visitorID := strings.TrimSpace(req.VisitorID)
	if len(visitorID) < minVisitorIDLength {
		response.RespondError(c, http.StatusBadRequest, "invalid_visitor_id", errors.New("invalid visitor ID"))
		return
	}

	used, remaining, err := h.usage.CheckQuota(c.Request.Context(), visitorID)
	if err != nil && !errors.Is(err, pkgerrors.ErrQuotaExceeded) {
		response.RespondError(c, http.StatusInternalServerError, "quota_check_failed", err)
		return
	}
	if errors.Is(err, pkgerrors.ErrQuotaExceeded) {
		h.log.Info("Quota exhausted for fingerprint", "fingerprint", visitorID)
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"message": "Daily quota exhausted. Come back tomorrow!",
				"code":    "quota_exhausted",
			},
			"requests_used": used,
		})
		return
	}

	token, err := h.auth.IssueFingerprintToken(visitorID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "token_issue_failed", err)
		return
	}
	h.log.Info("Fingerprint authenticated", "fingerprint", visitorID, "used", used, "limit", h.usage.Limit())

	response.RespondOK(c, gin.H{
		"token":              token,
		"is_admin":           false,
		"requests_used":      used,
		"requests_remaining": remaining,
		"daily_limit":        h.usage.Limit(),
	})
}

type validateCodeReq struct {
	Code        string `json:"code"`
	Fingerprint string `json:"fingerprint"`
}

// POST /auth/validate-code
//
// Exchanges an admin access code for a long-lived token. The optional
// fingerprint keeps personal documents reachable from an admin session.
func (h *AuthHandler) ValidateCode(c *gin.Context) {
	var req validateCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	ok, err := h.codes.Validate(c.Request.Context(), code)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "code_check_failed", err)
		return
	}
	if !ok {
		h.log.Warn("Invalid admin code attempted")
		response.RespondError(c, http.StatusUnauthorized, "invalid_code", errors.New("invalid access code"))
		return
	}

	token, err := h.auth.IssueAdminToken(code, strings.TrimSpace(req.Fingerprint))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "token_issue_failed", err)
		return
	}
	h.log.Info("Admin code validated")

	response.RespondOK(c, gin.H{
		"token":              token,
		"is_admin":           true,
		"requests_used":      0,
		"requests_remaining": nil,
	})
}
