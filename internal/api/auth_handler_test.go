package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, ts *testServer, path, token string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, ts *testServer, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("creates user and returns token", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/register", "", RegisterRequest{
			Email:    "reader@example.com",
			Password: "a-long-enough-password",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[AuthResponse](t, resp)
		assert.NotEmpty(t, body.Token)
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", body.UserID.String())
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/register", "", RegisterRequest{
			Email:    "reader@example.com",
			Password: "a-long-enough-password",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("rejects short password", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/register", "", RegisterRequest{
			Email:    "short@example.com",
			Password: "tooshort",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/auth/register",
			bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		resp, err := ts.srv.Client().Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	registered := decodeBody[AuthResponse](t, postJSON(t, ts, "/api/auth/register", "", RegisterRequest{
		Email:    "singer@example.com",
		Password: "a-long-enough-password",
	}))

	t.Run("returns token for valid credentials", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/login", "", LoginRequest{
			Email:    "singer@example.com",
			Password: "a-long-enough-password",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[AuthResponse](t, resp)
		assert.Equal(t, registered.UserID, body.UserID)
		assert.NotEmpty(t, body.Token)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/login", "", LoginRequest{
			Email:    "singer@example.com",
			Password: "not-the-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown email with the same status", func(t *testing.T) {
		resp := postJSON(t, ts, "/api/auth/login", "", LoginRequest{
			Email:    "nobody@example.com",
			Password: "a-long-enough-password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthMiddlewareIntegration(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	t.Run("rejects missing token", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/clips/counts", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		resp := getJSON(t, ts, "/api/clips/counts", "bogus")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts token via query parameter", func(t *testing.T) {
		_, token := ts.newAuthedUser(t)
		req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/clips/counts?token="+token, nil)
		require.NoError(t, err)
		resp, err := ts.srv.Client().Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
