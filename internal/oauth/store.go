package oauth

import "context"

// ClientStore persists clients. client_id is unique; CreateClient returns
// ErrDuplicate when it is taken and FindClient returns ErrNotFound when no
// client matches.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	UpdateClient(ctx context.Context, client *Client) error
	FindClient(ctx context.Context, clientID string) (*Client, error)
}

// TokenFilter selects at most one token by field equality. Empty fields do
// not constrain the match.
type TokenFilter struct {
	ClientID     string
	AccessToken  string
	RefreshToken string
	// ActiveOnly excludes revoked tokens.
	ActiveOnly bool
}

// TokenStore persists tokens. access_token is unique; refresh_token is
// indexed but not unique. A created token must be visible to the next
// FindToken call.
type TokenStore interface {
	CreateToken(ctx context.Context, token *Token) error
	FindToken(ctx context.Context, filter TokenFilter) (*Token, error)
	// RevokeToken sets the revoked flag of the token with the given access
	// token. Revoking a revoked token succeeds.
	RevokeToken(ctx context.Context, accessToken string) error
}

// CodeStore persists authorization codes. code is unique.
type CodeStore interface {
	CreateCode(ctx context.Context, code *AuthorizationCode) error
	FindCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// ConsumeCode fetches and deletes the code in one step, so a code is
	// handed out at most once.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteCode(ctx context.Context, code string) error
}
