package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// User is the authenticated resource owner of a request.
type User interface {
	GetUserID() string
}

// Request is the part of an authorization-server request this package
// reads: the authenticated client and, for user grants, the user.
type Request struct {
	Client *Client
	User   User
}

func (r *Request) userID() string {
	if r == nil || r.User == nil {
		return ""
	}
	return r.User.GetUserID()
}

// TokenParams are the fields of a freshly issued token.
type TokenParams struct {
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresIn    int64
	// IssuedAt defaults to the current time when zero.
	IssuedAt int64
}

var errMissingClient = errors.New("oauth: request has no authenticated client")

// Option configures the adapters in this package.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	now    func() time.Time
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Queries are the lookup functions the authorization server runtime calls
// to resolve clients and tokens.
type Queries struct {
	clients ClientStore
	tokens  TokenStore
	options
}

// NewQueries returns the client and token queries over the given stores.
func NewQueries(clients ClientStore, tokens TokenStore, opts ...Option) *Queries {
	return &Queries{
		clients: clients,
		tokens:  tokens,
		options: newOptions(opts),
	}
}

// QueryClient returns the client with the given id, or nil when there is
// none.
func (q *Queries) QueryClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := q.clients.FindClient(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		q.logger.Debug().Str("client_id", clientID).Msg("client not found")
		return nil, nil
	}
	if err != nil {
		return nil, StorageError(err, fmt.Sprintf("query client %s", clientID))
	}
	return client, nil
}

// SaveToken persists a newly issued token for the request's client. The
// user id is taken from the request's user when there is one.
func (q *Queries) SaveToken(ctx context.Context, params TokenParams, req *Request) error {
	if req == nil || req.Client == nil {
		return errMissingClient
	}
	issuedAt := params.IssuedAt
	if issuedAt == 0 {
		issuedAt = q.now().Unix()
	}
	token := &Token{
		ClientID:     req.Client.ClientID,
		UserID:       req.userID(),
		TokenType:    params.TokenType,
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		Scope:        params.Scope,
		IssuedAt:     issuedAt,
		ExpiresIn:    params.ExpiresIn,
	}
	if err := token.Validate(); err != nil {
		return err
	}
	if err := q.tokens.CreateToken(ctx, token); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return StorageError(err, "save token")
	}
	q.logger.Info().
		Str("client_id", token.ClientID).
		Str("token_ref", TokenRef(token.AccessToken)).
		Int64("expires_in", token.ExpiresIn).
		Msg("token issued")
	return nil
}

// QueryToken finds an unrevoked token owned by client. The hint picks the
// column to match; without a recognised hint the access token is tried
// before the refresh token.
func (q *Queries) QueryToken(ctx context.Context, token, hint string, client *Client) (*Token, error) {
	if client == nil || client.ClientID == "" || token == "" {
		return nil, nil
	}
	base := TokenFilter{ClientID: client.ClientID, ActiveOnly: true}

	switch hint {
	case HintAccessToken:
		f := base
		f.AccessToken = token
		return q.findToken(ctx, f)
	case HintRefreshToken:
		f := base
		f.RefreshToken = token
		return q.findToken(ctx, f)
	}

	f := base
	f.AccessToken = token
	found, err := q.findToken(ctx, f)
	if err != nil || found != nil {
		return found, err
	}
	f = base
	f.RefreshToken = token
	return q.findToken(ctx, f)
}

func (q *Queries) findToken(ctx context.Context, filter TokenFilter) (*Token, error) {
	token, err := q.tokens.FindToken(ctx, filter)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError(err, "query token")
	}
	return token, nil
}
