package oauth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
	"github.com/providentiaww/trilix-oauth/internal/storage"
)

func TestQueries_QueryClient(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	registerClient(store, "c1", "read write", "https://app.example/cb")
	q := oauth.NewQueries(store, store)

	client, err := q.QueryClient(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "c1", client.GetClientID())
	assert.Equal(t, "read write", client.Scope())

	client, err = q.QueryClient(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = q.QueryClient(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestQueries_QueryClient_StorageFailure(t *testing.T) {
	q := oauth.NewQueries(brokenStore{}, brokenStore{})

	client, err := q.QueryClient(context.Background(), "c1")
	assert.Nil(t, client)
	require.Error(t, err)
	assert.True(t, oauth.IsStorageError(err))
	assert.ErrorIs(t, err, errBackendDown)
}

func TestQueries_SaveToken(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	clock := &fixedClock{now: time.Unix(1700000100, 0)}
	q := oauth.NewQueries(store, store, oauth.WithClock(clock.Now))

	err := q.SaveToken(ctx, oauth.TokenParams{
		TokenType:    "Bearer",
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		Scope:        "read",
		ExpiresIn:    3600,
	}, &oauth.Request{Client: c1, User: testUser("u1")})
	require.NoError(t, err)

	tok, err := q.QueryToken(ctx, "tok1", "", c1)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "c1", tok.ClientID)
	assert.Equal(t, "u1", tok.UserID)
	assert.Equal(t, int64(1700000100), tok.IssuedAt)
	assert.Equal(t, int64(1700003700), tok.GetExpiresAt())
	assert.False(t, tok.Revoked)
}

func TestQueries_SaveToken_ClientCredentialsHasNoUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)

	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "cc1", TokenType: "Bearer"}, &oauth.Request{Client: c1}))

	tok, err := q.QueryToken(ctx, "cc1", oauth.HintAccessToken, c1)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Empty(t, tok.UserID)
}

func TestQueries_SaveToken_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)
	req := &oauth.Request{Client: c1}

	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "tok1"}, req))
	err := q.SaveToken(ctx, oauth.TokenParams{AccessToken: "tok1"}, req)
	assert.ErrorIs(t, err, oauth.ErrDuplicate)
	assert.False(t, oauth.IsStorageError(err))
}

func TestQueries_SaveToken_ConcurrentDuplicate(t *testing.T) {
	const n = 16
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)
	req := &oauth.Request{Client: c1}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = q.SaveToken(ctx, oauth.TokenParams{AccessToken: "tok1", RefreshToken: fmt.Sprintf("ref%d", i)}, req)
		}(i)
	}
	wg.Wait()

	var saved, duplicates int
	for _, err := range errs {
		if err == nil {
			saved++
			continue
		}
		assert.ErrorIs(t, err, oauth.ErrDuplicate)
		duplicates++
	}
	assert.Equal(t, 1, saved)
	assert.Equal(t, n-1, duplicates)

	tok, err := store.FindToken(ctx, oauth.TokenFilter{AccessToken: "tok1"})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("ref%d", i)
		if ref == tok.RefreshToken {
			continue
		}
		_, err := store.FindToken(ctx, oauth.TokenFilter{RefreshToken: ref})
		assert.ErrorIs(t, err, oauth.ErrNotFound, "losing insert %s left a record", ref)
	}
}

func TestQueries_SaveToken_Errors(t *testing.T) {
	ctx := context.Background()
	c1 := &oauth.Client{ClientID: "c1"}

	q := oauth.NewQueries(brokenStore{}, brokenStore{})
	err := q.SaveToken(ctx, oauth.TokenParams{AccessToken: "tok1"}, &oauth.Request{Client: c1})
	assert.True(t, oauth.IsStorageError(err))

	assert.Error(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "tok1"}, nil))
	assert.Error(t, q.SaveToken(ctx, oauth.TokenParams{}, &oauth.Request{Client: c1}))
}

func TestQueries_QueryToken_Hints(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)
	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "A", RefreshToken: "R"}, &oauth.Request{Client: c1}))

	tests := []struct {
		name  string
		value string
		hint  string
		found bool
	}{
		{"refresh value with refresh hint", "R", oauth.HintRefreshToken, true},
		{"refresh value with access hint", "R", oauth.HintAccessToken, false},
		{"access value with refresh hint", "A", oauth.HintRefreshToken, false},
		{"access value with access hint", "A", oauth.HintAccessToken, true},
		{"access value without hint", "A", "", true},
		{"refresh value without hint", "R", "", true},
		{"refresh value with unknown hint", "R", "id_token", true},
		{"unknown value", "nope", "", false},
		{"empty value", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := q.QueryToken(ctx, tt.value, tt.hint, c1)
			require.NoError(t, err)
			if tt.found {
				require.NotNil(t, tok)
				assert.Equal(t, "A", tok.AccessToken)
			} else {
				assert.Nil(t, tok)
			}
		})
	}
}

func TestQueries_QueryToken_OtherClient(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	c2 := registerClient(store, "c2", "read")
	q := oauth.NewQueries(store, store)
	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "A"}, &oauth.Request{Client: c1}))

	tok, err := q.QueryToken(ctx, "A", "", c2)
	assert.NoError(t, err)
	assert.Nil(t, tok)

	tok, err = q.QueryToken(ctx, "A", "", nil)
	assert.NoError(t, err)
	assert.Nil(t, tok)
}

func TestQueries_QueryToken_ClientWithoutID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)
	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "A", RefreshToken: "R"}, &oauth.Request{Client: c1}))

	anonymous := &oauth.Client{}
	for _, hint := range []string{"", oauth.HintAccessToken, oauth.HintRefreshToken} {
		for _, value := range []string{"A", "R"} {
			tok, err := q.QueryToken(ctx, value, hint, anonymous)
			assert.NoError(t, err)
			assert.Nil(t, tok, "hint %q value %q", hint, value)
		}
	}
}

func TestQueries_QueryToken_SkipsRevoked(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c1 := registerClient(store, "c1", "read")
	q := oauth.NewQueries(store, store)
	require.NoError(t, q.SaveToken(ctx, oauth.TokenParams{AccessToken: "A", RefreshToken: "R"}, &oauth.Request{Client: c1}))
	require.NoError(t, store.RevokeToken(ctx, "A"))

	for _, value := range []string{"A", "R"} {
		tok, err := q.QueryToken(ctx, value, "", c1)
		assert.NoError(t, err)
		assert.Nil(t, tok, value)
	}
}

func TestQueries_QueryToken_StorageFailure(t *testing.T) {
	q := oauth.NewQueries(brokenStore{}, brokenStore{})
	tok, err := q.QueryToken(context.Background(), "A", "", &oauth.Client{ClientID: "c1"})
	assert.Nil(t, tok)
	assert.True(t, oauth.IsStorageError(err))
}
