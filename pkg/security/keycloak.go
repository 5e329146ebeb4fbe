package security

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUser   = "user"
	ContextEmail  = "email"
	ContextClaims = "claims"
)

type KeycloakClaims struct {
	Azp               string `json:"azp"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates bearer tokens against the Keycloak JWKS endpoint.
// The returned stop function ends the background key refresh.
func AuthMiddleware(jwksURL, clientID string) (gin.HandlerFunc, func(), error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshTimeout:   10 * time.Second,
		RefreshRateLimit: time.Minute * 5,
		RefreshErrorHandler: func(err error) {
			log.Printf("Error refreshing JWKS: %v", err)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}
	return Middleware(jwks.Keyfunc, clientID), jwks.EndBackground, nil
}

// Middleware is AuthMiddleware with the key lookup supplied by the caller.
func Middleware(keyFunc jwt.Keyfunc, clientID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abort(c, "Invalid authorization header format")
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &KeycloakClaims{}, keyFunc)
		if err != nil {
			abort(c, fmt.Sprintf("Invalid token: %v", err))
			return
		}
		if !token.Valid {
			abort(c, "Token is not valid")
			return
		}

		claims, ok := token.Claims.(*KeycloakClaims)
		if !ok {
			abort(c, "Failed to extract claims")
			return
		}

		if claims.Azp != clientID {
			abort(c, "Invalid audience")
			return
		}

		c.Set(ContextUser, claims.PreferredUsername)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// Username returns the authenticated user, or "anonymous" when auth is disabled.
func Username(c *gin.Context) string {
	if u := c.GetString(ContextUser); u != "" {
		return u
	}
	return "anonymous"
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}
