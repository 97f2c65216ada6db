package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyUserClaims is the key for JWT claims in gin context
	ContextKeyUserClaims = "user_claims"
)

// JWTClaims represents the claims in a JWT token.
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig holds configuration for JWT authentication.
type AuthConfig struct {
	SecretKey      string        // JWT secret key
	ExpiryDuration time.Duration // Token expiry duration
	Issuer         string        // Token issuer
	Audience       string        // Token audience
	TokenHeader    string        // Header name for token
	TokenPrefix    string        // Prefix before token (e.g., "Bearer ")
}

// DefaultAuthConfig returns default authentication configuration.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		SecretKey:      "your-secret-key-change-in-production",
		ExpiryDuration: 24 * time.Hour,
		Issuer:         "matching-engine",
		Audience:       "matching-engine-api",
		TokenHeader:    "Authorization",
		TokenPrefix:    "Bearer ",
	}
}

// AuthMiddleware provides JWT authentication for the mutating order
// endpoints. Read-only market data stays public.
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	if config == nil {
		config = DefaultAuthConfig()
	}
	return &AuthMiddleware{config: config}
}

// GinMiddleware returns the Gin middleware handler function.
func (a *AuthMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(a.config.TokenHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing authorization header",
				"code":    "AUTH_MISSING_HEADER",
			})
			return
		}

		if !strings.HasPrefix(authHeader, a.config.TokenPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid authorization header format",
				"code":    "AUTH_INVALID_FORMAT",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, a.config.TokenPrefix)

		claims, err := a.validateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
				"code":    "AUTH_INVALID_TOKEN",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUserClaims, claims)

		c.Next()
	}
}

// validateToken parses and validates a JWT token.
func (a *AuthMiddleware) validateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(a.config.SecretKey), nil
	})

	if err != nil {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if a.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != a.config.Issuer {
			return nil, errors.New("invalid token issuer")
		}
	}

	if a.config.Audience != "" {
		audience, err := claims.GetAudience()
		if err != nil || !containsAudience(audience, a.config.Audience) {
			return nil, errors.New("invalid token audience")
		}
	}

	return claims, nil
}

// containsAudience checks if the audience slice contains the expected audience.
func containsAudience(audiences []string, expected string) bool {
	for _, aud := range audiences {
		if aud == expected {
			return true
		}
	}
	return false
}

// GenerateToken generates a new JWT token for a user.
func (a *AuthMiddleware) GenerateToken(userID int64, username, role string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.ExpiryDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.config.Issuer,
			Audience:  jwt.ClaimStrings{a.config.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.SecretKey))
}

// GetUserID extracts the user ID from gin context.
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
