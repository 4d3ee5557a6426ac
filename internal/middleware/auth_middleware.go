package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "chronos-api/pkg/errors"
)

// RoleAdmin grants access to the admin routes
const RoleAdmin = "admin"

// AuthMiddleware accepts either a bearer JWT or an internal API key
type AuthMiddleware struct {
	jwtSecret  []byte
	issuer     string
	apiKeyHash []byte
	skipPaths  map[string]bool
}

// Claims are the JWT claims the service understands
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates the middleware. apiKeyHash is a bcrypt hash; an
// empty hash disables API key access.
func NewAuthMiddleware(jwtSecret, issuer, apiKeyHash string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:  []byte(jwtSecret),
		issuer:     issuer,
		apiKeyHash: []byte(apiKeyHash),
		skipPaths: map[string]bool{
			"/health":  true,
			"/ready":   true,
			"/version": true,
			"/metrics": true,
		},
	}
}

// Authenticate rejects requests without valid credentials
func (a *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			if len(a.apiKeyHash) == 0 || bcrypt.CompareHashAndPassword(a.apiKeyHash, []byte(apiKey)) != nil {
				abort(c, apperrors.NewUnauthorizedError("Invalid API key"))
				return
			}
			c.Set("is_internal", true)
			c.Set("role", RoleAdmin)
			c.Next()
			return
		}

		tokenString, err := bearerToken(c)
		if err != nil {
			abort(c, apperrors.NewUnauthorizedError(err.Error()))
			return
		}

		claims, err := a.ParseToken(tokenString)
		if err != nil {
			abort(c, apperrors.ErrTokenInvalid)
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("jwt_claims", claims)
		c.Next()
	}
}

// RequireRole only lets through requests authenticated with role
func (a *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			abort(c, apperrors.NewAppError(403, "FORBIDDEN", "Insufficient permissions"))
			return
		}
		c.Next()
	}
}

// ParseToken validates an HS256 token and returns its claims
func (a *AuthMiddleware) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter on WebSocket upgrades where browsers cannot set
// headers.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			if token := c.Query("access_token"); token != "" {
				return token, nil
			}
		}
		return "", fmt.Errorf("authorization header required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("authorization header must be 'Bearer <token>'")
	}
	return parts[1], nil
}

func abort(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr})
}
