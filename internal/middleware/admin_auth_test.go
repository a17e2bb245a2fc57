package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signAdminToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

func newProtectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminProtected(secret), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminProtected(t *testing.T) {
	const secret = "admin-secret"
	app := newProtectedApp(secret)

	request := func(authorization string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	adminToken := signAdminToken(t, secret, jwt.MapClaims{
		"sub":  "prof",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, fiber.StatusOK, request("Bearer "+adminToken))

	// A valid token without the admin role is authenticated but not
	// authorized.
	studentToken := signAdminToken(t, secret, jwt.MapClaims{
		"sub": "student",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, fiber.StatusForbidden, request("Bearer "+studentToken))

	wrongKey := signAdminToken(t, "other-secret", jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, fiber.StatusUnauthorized, request("Bearer "+wrongKey))

	expired := signAdminToken(t, secret, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})
	require.Equal(t, fiber.StatusUnauthorized, request("Bearer "+expired))

	require.Equal(t, fiber.StatusUnauthorized, request(""))
	require.Equal(t, fiber.StatusUnauthorized, request("Basic abc"))
}
