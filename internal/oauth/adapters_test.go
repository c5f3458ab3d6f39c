package oauth_test

import (
	"context"
	"errors"
	"time"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
	"github.com/providentiaww/trilix-oauth/internal/storage"
)

var errBackendDown = errors.New("backend down")

type testUser string

func (u testUser) GetUserID() string { return string(u) }

// brokenStore fails every call with errBackendDown.
type brokenStore struct{}

func (brokenStore) CreateClient(context.Context, *oauth.Client) error { return errBackendDown }
func (brokenStore) UpdateClient(context.Context, *oauth.Client) error { return errBackendDown }
func (brokenStore) FindClient(context.Context, string) (*oauth.Client, error) {
	return nil, errBackendDown
}
func (brokenStore) CreateToken(context.Context, *oauth.Token) error { return errBackendDown }
func (brokenStore) FindToken(context.Context, oauth.TokenFilter) (*oauth.Token, error) {
	return nil, errBackendDown
}
func (brokenStore) RevokeToken(context.Context, string) error { return errBackendDown }
func (brokenStore) CreateCode(context.Context, *oauth.AuthorizationCode) error {
	return errBackendDown
}
func (brokenStore) FindCode(context.Context, string) (*oauth.AuthorizationCode, error) {
	return nil, errBackendDown
}
func (brokenStore) ConsumeCode(context.Context, string) (*oauth.AuthorizationCode, error) {
	return nil, errBackendDown
}
func (brokenStore) DeleteCode(context.Context, string) error { return errBackendDown }

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func registerClient(store *storage.MemoryStore, id, scope string, redirects ...string) *oauth.Client {
	c := &oauth.Client{ClientID: id, ClientSecret: "secret-" + id, ClientIDIssuedAt: 1700000000}
	c.SetClientMetadata(oauth.ClientMetadata{
		RedirectURIs:  redirects,
		Scope:         scope,
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
	})
	if err := store.CreateClient(context.Background(), c); err != nil {
		panic(err)
	}
	return c
}
