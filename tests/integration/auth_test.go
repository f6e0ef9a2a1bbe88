//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegister(t *testing.T) {
	env := SetupTestEnv(t)

	t.Run("successful registration", func(t *testing.T) {
		result := RegisterUser(t, env, "test-reg@example.com", "password123")
		data := result["data"].(map[string]any)

		assert.NotEmpty(t, data["access_token"])
		assert.NotEmpty(t, data["refresh_token"])
		assert.NotZero(t, data["expires_in"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		RegisterUser(t, env, "dupe@example.com", "password123")

		resp := DoRequest(t, env, "POST", "/api/v1/auth/register",
			map[string]string{"email": "dupe@example.com", "password": "password123"}, "")
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		result := ParseResponse(t, resp)
		assert.Equal(t, "conflict", result["code"])
	})

	t.Run("short password", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/register",
			map[string]string{"email": "short@example.com", "password": "short"}, "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	env := SetupTestEnv(t)

	RegisterUser(t, env, "login@example.com", "password123")

	t.Run("valid credentials", func(t *testing.T) {
		token := LoginUser(t, env, "login@example.com", "password123")
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/login",
			map[string]string{"email": "login@example.com", "password": "wrong-password"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		result := ParseResponse(t, resp)
		assert.Equal(t, "unauthenticated", result["code"])
	})

	t.Run("unknown email", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/login",
			map[string]string{"email": "nobody@example.com", "password": "password123"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRefreshTokenRotation(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "refresh@example.com", "password123")
	data := result["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)

	t.Run("refresh issues new pair", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh",
			map[string]string{"refresh_token": refreshToken}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		newData := ParseResponse(t, resp)["data"].(map[string]any)
		assert.NotEmpty(t, newData["access_token"])
		assert.NotEqual(t, refreshToken, newData["refresh_token"])
	})

	t.Run("refresh token is single use", func(t *testing.T) {
		resp := DoRequest(t, env, "POST", "/api/v1/auth/refresh",
			map[string]string{"refresh_token": refreshToken}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogoutRevokesRefreshTokens(t *testing.T) {
	env := SetupTestEnv(t)

	result := RegisterUser(t, env, "logout@example.com", "password123")
	data := result["data"].(map[string]any)
	accessToken := data["access_token"].(string)
	refreshToken := data["refresh_token"].(string)

	resp := DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": refreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
