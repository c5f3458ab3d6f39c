package oauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
	"github.com/providentiaww/trilix-oauth/internal/storage"
)

// TestAuthorizationCodeFlow walks one client through authorization,
// token issue, resource access and revocation.
func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clock := &fixedClock{now: time.Unix(1700000000, 0)}
	opts := []oauth.Option{oauth.WithClock(clock.Now)}

	registerClient(store, "c1", "read write", "https://app.example/cb")
	queries := oauth.NewQueries(store, store, opts...)
	codes := oauth.NewCodes(store, opts...)
	revocation := oauth.NewRevocationEndpoint(store, nil, opts...)
	bearer := oauth.NewBearerTokenValidator(store, opts...)

	// Authorization endpoint.
	client, err := queries.QueryClient(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.True(t, client.CheckResponseType("code"))
	redirect, ok := client.DefaultRedirectURI()
	require.True(t, ok)
	assert.True(t, client.CheckRedirectURI(redirect))
	scope := client.AllowedScope("read admin")
	assert.Equal(t, "read", scope)

	user := testUser("u1")
	require.NoError(t, codes.SaveAuthorizationCode(ctx, &oauth.AuthorizationCode{
		Code:         "code1",
		RedirectURI:  redirect,
		ResponseType: "code",
		Scope:        scope,
	}, &oauth.Request{Client: client, User: user}))

	// Token endpoint, 100 seconds later.
	clock.now = clock.now.Add(100 * time.Second)
	require.True(t, client.CheckClientSecret("secret-c1"))
	require.True(t, client.CheckGrantType("authorization_code"))
	code, err := codes.ConsumeAuthorizationCode(ctx, "code1", client)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, "u1", code.UserID)
	assert.Equal(t, redirect, code.GetRedirectURI())

	replay, err := codes.ConsumeAuthorizationCode(ctx, "code1", client)
	require.NoError(t, err)
	assert.Nil(t, replay)

	require.NoError(t, queries.SaveToken(ctx, oauth.TokenParams{
		TokenType:    "Bearer",
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		Scope:        code.GetScope(),
		ExpiresIn:    3600,
	}, &oauth.Request{Client: client, User: user}))

	// Resource server.
	tok, err := bearer.Validate(ctx, "tok1", []string{"read"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", tok.UserID)

	// Revocation endpoint.
	require.NoError(t, revocation.Revoke(ctx, "tok1", oauth.HintAccessToken, client))
	_, err = bearer.Validate(ctx, "tok1", []string{"read"}, nil)
	assert.Equal(t, oauth.TextCodeInvalidToken, oauth.ValidationTextCode(err))

	found, err := queries.QueryToken(ctx, "ref1", oauth.HintRefreshToken, client)
	require.NoError(t, err)
	assert.Nil(t, found)
}
