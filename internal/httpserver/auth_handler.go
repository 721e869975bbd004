package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
)

type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /register
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body"))
		return
	}

	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, u)
}

// Login handles POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("invalid request body"))
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"token": token})
}
