package oauth

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// BearerTokenValidator resolves bearer tokens presented to a resource
// server (RFC 6750).
type BearerTokenValidator struct {
	tokens TokenStore
	options
}

// NewBearerTokenValidator returns a validator backed by tokens.
func NewBearerTokenValidator(tokens TokenStore, opts ...Option) *BearerTokenValidator {
	return &BearerTokenValidator{tokens: tokens, options: newOptions(opts)}
}

// AuthenticateToken returns the token with the given access token value,
// whichever client owns it, or nil.
func (v *BearerTokenValidator) AuthenticateToken(ctx context.Context, tokenString string) (*Token, error) {
	if tokenString == "" {
		return nil, nil
	}
	token, err := v.tokens.FindToken(ctx, TokenFilter{AccessToken: tokenString})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError(err, "authenticate token")
	}
	return token, nil
}

// RequestInvalid adds no request checks beyond the token itself.
func (v *BearerTokenValidator) RequestInvalid(*http.Request) bool {
	return false
}

// TokenRevoked reports the revocation state only; expiry is checked
// separately at the moment of use.
func (v *BearerTokenValidator) TokenRevoked(token *Token) bool {
	return token.Revoked
}

// Validate authenticates tokenString and applies the RFC 6750 checks in
// order: unknown, expired, invalid request, revoked, insufficient scope.
func (v *BearerTokenValidator) Validate(ctx context.Context, tokenString string, scopes []string, r *http.Request) (*Token, error) {
	token, err := v.AuthenticateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, bearerError("token is unknown", goerrors.CategoryAuth, http.StatusUnauthorized, TextCodeInvalidToken)
	}
	if token.IsExpiredAt(v.now()) {
		return nil, bearerError("token has expired", goerrors.CategoryAuth, http.StatusUnauthorized, TextCodeInvalidToken)
	}
	if v.RequestInvalid(r) {
		return nil, bearerError("request is invalid", goerrors.CategoryBadInput, http.StatusBadRequest, TextCodeInvalidRequest)
	}
	if v.TokenRevoked(token) {
		v.logger.Debug().Str("token_ref", TokenRef(tokenString)).Msg("revoked token presented")
		return nil, bearerError("token has been revoked", goerrors.CategoryAuth, http.StatusUnauthorized, TextCodeInvalidToken)
	}
	if scopeInsufficient(token.Scope, scopes) {
		return nil, bearerError("token scope is insufficient", goerrors.CategoryAuthz, http.StatusForbidden, TextCodeInsufficientScope)
	}
	return token, nil
}

// scopeInsufficient reports whether granted lacks any of the required
// scopes. No required scopes are always satisfied.
func scopeInsufficient(granted string, required []string) bool {
	if len(required) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, s := range ScopeToList(granted) {
		have[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return true
		}
	}
	return false
}
