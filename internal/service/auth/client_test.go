package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AuthConfig{URL: srv.URL + "/", APIKey: "anon"}, srv.Client())
}

func TestSignInWithPasswordSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))

		var creds credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "reader@example.com", creds.Email)
		assert.Equal(t, "hunter2", creds.Password)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"jwt-token","token_type":"bearer","expires_in":3600,"refresh_token":"r","user":{"id":"u-1","email":"reader@example.com","aud":"authenticated"}}`))
	})

	grant, err := client.SignInWithPassword(context.Background(), "reader@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", grant.AccessToken)
	assert.Equal(t, "u-1", grant.User.ID)
	assert.Equal(t, "reader@example.com", grant.User.Email)
	assert.Equal(t, "authenticated", grant.User.Audience)
}

func TestSignInWithPasswordInvalidCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	grant, err := client.SignInWithPassword(context.Background(), "reader@example.com", "wrong")
	assert.Nil(t, grant)
	require.Error(t, err)
	assert.True(t, chat.IsCallFailure(err))
	assert.Equal(t, "Invalid login credentials", err.Error())
}

func TestSignInWithPasswordMissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":"u-1"}}`))
	})

	_, err := client.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.Error(t, err)
	assert.True(t, chat.IsCallFailure(err))
}

func TestSignUpAcceptsBareUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u-2","email":"new@example.com"}`))
	})

	user, err := client.SignUp(context.Background(), "new@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestSignUpAcceptsUserWithSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"t","user":{"id":"u-3","email":"auto@example.com"}}`))
	})

	user, err := client.SignUp(context.Background(), "auto@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "u-3", user.ID)
}

func TestSignUpProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`))
	})

	_, err := client.SignUp(context.Background(), "new@example.com", "pw")
	require.Error(t, err)
	assert.Equal(t, "Password should be at least 6 characters.", err.Error())
}

func TestProviderMessageFallsBackToStatus(t *testing.T) {
	assert.Equal(t, "502 Bad Gateway", providerMessage([]byte("<html>"), http.StatusBadGateway))
	assert.Equal(t, "unexpected status 599", providerMessage(nil, 599))
}
