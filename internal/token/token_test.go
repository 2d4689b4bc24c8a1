package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/wire/internal/api"
	"github.com/rickgao/wire/internal/auth"
)

func TestStatic(t *testing.T) {
	var p Provider = NewStatic("lobby", "abc")

	got, err := p.Token(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, ChannelToken{Channel: "lobby", Token: "abc"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Token(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProviderFunc(t *testing.T) {
	var gotHint string
	p := ProviderFunc(func(_ context.Context, hint string) (ChannelToken, error) {
		gotHint = hint
		return ChannelToken{Channel: "c", Token: "t"}, nil
	})

	got, err := p.Token(context.Background(), "hint")
	require.NoError(t, err)
	assert.Equal(t, "hint", gotHint)
	assert.Equal(t, "c", got.Channel)
}

func TestJWTProvider(t *testing.T) {
	creds := &auth.Credentials{Subject: "user", Secret: []byte("k")}

	t.Run("fixed channel", func(t *testing.T) {
		got, err := NewJWTProvider(creds, "lobby").Token(context.Background(), "other")
		require.NoError(t, err)
		assert.Equal(t, "lobby", got.Channel)

		claims, err := creds.Verify(got.Token)
		require.NoError(t, err)
		assert.Equal(t, "lobby", claims.Channel)
	})

	t.Run("hint channel", func(t *testing.T) {
		got, err := NewJWTProvider(creds, "").Token(context.Background(), "room:1")
		require.NoError(t, err)
		assert.Equal(t, "room:1", got.Channel)
	})

	t.Run("no channel", func(t *testing.T) {
		_, err := NewJWTProvider(creds, "").Token(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoChannel)
	})

	t.Run("no signing key", func(t *testing.T) {
		_, err := NewJWTProvider(&auth.Credentials{Subject: "user"}, "lobby").Token(context.Background(), "")
		assert.True(t, errors.Is(err, auth.ErrNoSigningKey))
	})
}

func TestHTTPProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			channel = "assigned"
		}
		w.Write([]byte(`{"channel":"` + channel + `","token":"tok-` + channel + `"}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "key")

	got, err := NewHTTPProvider(client, "lobby").Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ChannelToken{Channel: "lobby", Token: "tok-lobby"}, got)

	got, err = NewHTTPProvider(client, "").Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "assigned", got.Channel)

	got, err = NewHTTPProvider(client, "").Token(context.Background(), "hinted")
	require.NoError(t, err)
	assert.Equal(t, "tok-hinted", got.Token)
}

func TestHTTPProvider_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewHTTPProvider(api.NewClient(server.URL, ""), "lobby").Token(context.Background(), "")

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
