package security

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newRouter(t *testing.T) (*gin.Engine, *rsa.PrivateKey) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil }

	r := gin.New()
	r.GET("/private", Middleware(keyFunc, "logo-forge"), func(c *gin.Context) {
		c.String(http.StatusOK, Username(c))
	})
	return r, key
}

func sign(t *testing.T, key *rsa.PrivateKey, azp string, expires time.Time) string {
	t.Helper()
	claims := KeycloakClaims{
		Azp:               azp,
		PreferredUsername: "alice",
		RegisteredClaims:  jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expires)},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMiddleware(t *testing.T) {
	r, key := newRouter(t)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"other client", "Bearer " + sign(t, key, "someone-else", future), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, key, "logo-forge", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + sign(t, key, "logo-forge", future), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != "alice" {
				t.Fatalf("expected user alice, got %q", w.Body.String())
			}
		})
	}
}
