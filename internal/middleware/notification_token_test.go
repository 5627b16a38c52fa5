package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tienda/internal/middleware"
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(tokens *services.NotificationTokenService) *fiber.App {
	app := fiber.New()
	app.Post("/notify/:token", middleware.NotificationTokenRequired(tokens, nil), func(c *fiber.Ctx) error {
		return c.SendString(middleware.NotificationOrderID(c))
	})
	return app
}

func TestNotificationTokenRequired(t *testing.T) {
	tokens := services.NewNotificationTokenService("secret", time.Hour)
	app := setupApp(tokens)

	token, err := tokens.Issue("order-42")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/notify/"+token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "order-42", string(body))
	resp.Body.Close()
}

func TestNotificationTokenRequired_Rejects(t *testing.T) {
	tokens := services.NewNotificationTokenService("secret", time.Hour)
	app := setupApp(tokens)

	forged, err := services.NewNotificationTokenService("other-secret", time.Hour).Issue("order-42")
	require.NoError(t, err)

	for _, token := range []string{"garbage", forged} {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/notify/"+token, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}
