package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/airvoyage/reservation-backend/pkg/jwt"
)

const operatorClaimsKey = "operatorClaims"

// OperatorAuth guards the admin surface. It expects a Bearer token issued by
// the login endpoint and stores the parsed claims in the gin context.
func OperatorAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header must be 'Bearer <token>'",
			})
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(operatorClaimsKey, claims)
		c.Next()
	}
}

// GetOperatorClaims returns the claims stored by OperatorAuth.
func GetOperatorClaims(c *gin.Context) (*jwt.Claims, bool) {
	value, exists := c.Get(operatorClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*jwt.Claims)
	return claims, ok
}
