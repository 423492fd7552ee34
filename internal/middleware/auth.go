package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BruksfildServices01/slot-scheduler/internal/config"
)

const (
	ContextActorID    = "actorID"
	ContextActorEmail = "actorEmail"
	ContextActorRole  = "actorRole"
)

func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_authorization_header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_authorization_header"})
			return
		}

		tokenString := parts[1]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {

			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenMalformed
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token_claims"})
			return
		}

		actorID := subjectOf(claims)
		if actorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token_payload"})
			return
		}
		email, _ := claims["email"].(string)
		role, _ := claims["role"].(string)

		c.Set(ContextActorID, actorID)
		c.Set(ContextActorEmail, email)
		c.Set(ContextActorRole, role)

		c.Next()
	}
}

// subjectOf accepts string subjects and numeric ids from older tokens.
func subjectOf(claims jwt.MapClaims) string {
	switch v := claims["sub"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// Actor returns the authenticated actor set by AuthMiddleware.
func Actor(c *gin.Context) (id, email, role string) {
	return c.GetString(ContextActorID), c.GetString(ContextActorEmail), c.GetString(ContextActorRole)
}
