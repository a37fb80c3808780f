package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/mifiscal-api/internal/application/dto"
	"github.com/tu-usuario/mifiscal-api/pkg/jwt"
)

const secretPrueba = "secreto-de-prueba"

// appProtegida monta una ruta mínima detrás del middleware de auth que
// devuelve el user_id extraído del token.
func appProtegida() *fiber.App {
	app := fiber.New()
	app.Get("/protegida", AuthMiddleware(secretPrueba), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": GetUserID(c)})
	})
	return app
}

func solicitar(t *testing.T, app *fiber.App, authHeader string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protegida", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAuthMiddleware_TokenValido(t *testing.T) {
	app := appProtegida()
	token, err := jwt.Generate(secretPrueba, "user-42", "mifiscal-api", 15)
	require.NoError(t, err)

	resp, body := solicitar(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "user-42", out["user_id"], "el user_id del token debe llegar al handler")
}

func TestAuthMiddleware_SinHeader(t *testing.T) {
	resp, body := solicitar(t, appProtegida(), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var out dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "MISSING_TOKEN", out.Code)
}

func TestAuthMiddleware_FormatoInvalido(t *testing.T) {
	casos := []string{
		"token-sin-esquema",
		"Basic dXN1YXJpbzpjbGF2ZQ==",
	}
	for _, header := range casos {
		resp, body := solicitar(t, appProtegida(), header)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "header %q", header)

		var out dto.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, "INVALID_TOKEN", out.Code, "header %q", header)
	}
}

func TestAuthMiddleware_TokenVacio(t *testing.T) {
	resp, body := solicitar(t, appProtegida(), "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var out dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "MISSING_TOKEN", out.Code)
}

func TestAuthMiddleware_FirmaIncorrecta(t *testing.T) {
	token, err := jwt.Generate("otro-secreto", "user-42", "mifiscal-api", 15)
	require.NoError(t, err)

	resp, body := solicitar(t, appProtegida(), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var out dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "INVALID_TOKEN", out.Code)
}

func TestAuthMiddleware_TokenExpirado(t *testing.T) {
	token, err := jwt.Generate(secretPrueba, "user-42", "mifiscal-api", -5)
	require.NoError(t, err)

	resp, _ := solicitar(t, appProtegida(), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetUserID_SinContexto(t *testing.T) {
	app := fiber.New()
	app.Get("/abierta", func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})
	req := httptest.NewRequest(http.MethodGet, "/abierta", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, string(body), "sin middleware no hay user_id")
}
