package handler

import (
	"net/http"

	"chatio/internal/middleware"
	"chatio/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc *service.AuthService
	log *zap.Logger
}

func NewAuthHandler(svc *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log.Named("auth")}
}

type guestRequest struct {
	Gender string `json:"gender" binding:"omitempty,oneof=MALE FEMALE RATHER_NOT_SAY"`
}

// Guest creates a GUEST identity and returns it with an access token. The body
// is optional.
func (h *AuthHandler) Guest(c *gin.Context) {
	var req guestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": service.KindValidation})
			return
		}
	}
	user, token, err := h.svc.CreateGuest(c.Request.Context(), req.Gender)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":         user,
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.svc.Identify(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
