package oauth

import (
	"context"
	"errors"
)

// RevocationNotifier is told about every token the revocation endpoint
// revokes, e.g. to let resource servers drop cached introspection results.
type RevocationNotifier interface {
	TokenRevoked(ctx context.Context, token *Token) error
}

// RevocationEndpoint implements the storage side of RFC 7009. A token
// moves from active to revoked once; revoking it again is a no-op that
// still succeeds.
type RevocationEndpoint struct {
	queries  *Queries
	tokens   TokenStore
	notifier RevocationNotifier
	options
}

// NewRevocationEndpoint returns an endpoint revoking tokens in tokens.
// notifier may be nil.
func NewRevocationEndpoint(tokens TokenStore, notifier RevocationNotifier, opts ...Option) *RevocationEndpoint {
	return &RevocationEndpoint{
		queries:  NewQueries(nil, tokens, opts...),
		tokens:   tokens,
		notifier: notifier,
		options:  newOptions(opts),
	}
}

// QueryToken finds the client's unrevoked token, as Queries.QueryToken.
func (e *RevocationEndpoint) QueryToken(ctx context.Context, token, hint string, client *Client) (*Token, error) {
	return e.queries.QueryToken(ctx, token, hint, client)
}

// RevokeToken marks token revoked and persists it.
func (e *RevocationEndpoint) RevokeToken(ctx context.Context, token *Token) error {
	err := e.tokens.RevokeToken(ctx, token.AccessToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StorageError(err, "revoke token")
	}
	token.Revoked = true
	e.logger.Info().
		Str("client_id", token.ClientID).
		Str("token_ref", TokenRef(token.AccessToken)).
		Msg("token revoked")
	return nil
}

// Revoke runs the revocation request for a token value presented by
// client. An unknown token is not an error, so the response never reveals
// whether the token existed.
func (e *RevocationEndpoint) Revoke(ctx context.Context, token, hint string, client *Client) error {
	found, err := e.QueryToken(ctx, token, hint, client)
	if err != nil {
		return err
	}
	if found == nil {
		e.logger.Debug().Str("token_ref", TokenRef(token)).Msg("revocation of unknown token")
		return nil
	}
	if err := e.RevokeToken(ctx, found); err != nil {
		return err
	}
	if e.notifier != nil {
		if err := e.notifier.TokenRevoked(ctx, found); err != nil {
			e.logger.Warn().Err(err).
				Str("token_ref", TokenRef(found.AccessToken)).
				Msg("revocation notification failed")
		}
	}
	return nil
}
