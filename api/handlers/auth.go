package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/vm-autoscaler/api/middleware"
	"github.com/OldStager01/vm-autoscaler/internal/auth"
	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/validation"
)

// AuthHandler logs in the single operator account configured for the
// dashboard.
type AuthHandler struct {
	username     string
	passwordHash string
	authService  *auth.Service
	secureCookie bool
}

func NewAuthHandler(username, passwordHash string, authService *auth.Service, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: passwordHash,
		authService:  authService,
		secureCookie: secureCookie,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"S3cret-pass"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in" example:"86400"`
	Username  string `json:"username" example:"admin"`
}

// Login godoc
// @Summary Log in
// @Description Exchanges operator credentials for a JWT, also set as an HTTP-only cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]interface{}
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	username := validation.SanitizeString(req.Username)
	if err := validation.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	passMatch := auth.CheckPassword(req.Password, h.passwordHash)
	if !userMatch || !passMatch {
		logger.WithContext(c.Request.Context()).Warnf("failed login for %q", username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	maxAge := int(h.authService.Duration().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookie, token, maxAge, "/", "", h.secureCookie, true)

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: maxAge,
		Username:  username,
	})
}

// Logout godoc
// @Summary Log out
// @Description Clears the auth cookie
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me godoc
// @Summary Current operator
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": middleware.GetUsername(c)})
}
