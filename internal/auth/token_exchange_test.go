package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExchanger_ExchangeCode(t *testing.T) {
	var gotForm map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())

		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"token_type": "Bearer",
			"refresh_token": "new-refresh",
			"expires_in": 86400
		}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	token, err := exchanger.ExchangeCode(context.Background(), "the-code", "the-verifier", "http://localhost:8080/callback")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotForm["grant_type"])
	assert.Equal(t, "the-code", gotForm["code"])
	assert.Equal(t, "the-verifier", gotForm["code_verifier"])
	assert.Equal(t, "http://localhost:8080/callback", gotForm["redirect_uri"])
	assert.Equal(t, "client-id", gotForm["client_id"])
	assert.NotContains(t, gotForm, "client_secret")

	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "new-refresh", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(86400*time.Second), token.Expiry, 5*time.Second)
}

func TestTokenExchanger_ClientSecretIncludedWhenConfigured(t *testing.T) {
	var gotSecret string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotSecret = r.PostForm.Get("client_secret")
		w.Write([]byte(`{"access_token": "a", "expires_in": 3600}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "the-secret", nil)

	_, err := exchanger.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "the-secret", gotSecret)
}

func TestTokenExchanger_Refresh(t *testing.T) {
	var gotForm map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		w.Write([]byte(`{"access_token": "refreshed-access", "expires_in": 3600}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	token, err := exchanger.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "old-refresh", gotForm["refresh_token"])
	assert.Equal(t, "refreshed-access", token.AccessToken)
	assert.Empty(t, token.RefreshToken, "response without refresh_token must not invent one")
}

func TestTokenExchanger_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	token, err := exchanger.Refresh(context.Background(), "stale-refresh")
	assert.Nil(t, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.NotContains(t, err.Error(), "invalid_grant", "response body must not leak into the error")
}

func TestTokenExchanger_MissingAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	token, err := exchanger.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/cb")
	assert.Nil(t, token)
	assert.Error(t, err)
}

func TestTokenExchanger_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	_, err := exchanger.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/cb")
	assert.Error(t, err)
}

func TestTokenExchanger_ExpiresInDefaulted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "a"}`))
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	token, err := exchanger.ExchangeCode(context.Background(), "code", "verifier", "http://localhost/cb")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(3600*time.Second), token.Expiry, 5*time.Second)
}

func TestTokenExchanger_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and
		// can observe the client disconnect; without this the request
		// context is never cancelled and Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer ts.Close()

	exchanger := NewTokenExchanger(ts.URL, "client-id", "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := exchanger.Refresh(ctx, "refresh")
	assert.Error(t, err)
}
