package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/services"
)

// AdminAuthHandler handles operator authentication.
type AdminAuthHandler struct {
	authService *services.AdminAuthService
	logger      *logrus.Logger
}

// NewAdminAuthHandler creates a new admin auth handler
func NewAdminAuthHandler(authService *services.AdminAuthService, logger *logrus.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// AdminLoginRequest carries operator credentials.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ============ ADMIN LOGIN - POST /api/admin/login ============

// Login godoc
// @Summary Operator login
// @Description Exchanges operator credentials for a JWT access token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body AdminLoginRequest true "Credentials"
// @Success 200 {object} services.AdminLoginResponse
// @Failure 401 {object} map[string]interface{} "Invalid credentials"
// @Router /api/admin/login [post]
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.WithField("ip", requestMeta(c).IPAddress).Warn("Operator login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
