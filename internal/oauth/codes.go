package oauth

import (
	"context"
	"errors"
)

// Codes are the authorization code lookups used by the authorization code
// grant: save at the authorization endpoint, consume at the token endpoint.
type Codes struct {
	codes CodeStore
	options
}

// NewCodes returns the authorization code queries over codes.
func NewCodes(codes CodeStore, opts ...Option) *Codes {
	return &Codes{codes: codes, options: newOptions(opts)}
}

// SaveAuthorizationCode persists code for the request's client and user.
// AuthTime defaults to now.
func (c *Codes) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, req *Request) error {
	if req == nil || req.Client == nil {
		return errMissingClient
	}
	record := *code
	record.ClientID = req.Client.ClientID
	if uid := req.userID(); uid != "" {
		record.UserID = uid
	}
	if record.AuthTime == 0 {
		record.AuthTime = c.now().Unix()
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if err := c.codes.CreateCode(ctx, &record); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return StorageError(err, "save authorization code")
	}
	*code = record
	c.logger.Debug().
		Str("client_id", record.ClientID).
		Str("code_ref", TokenRef(record.Code)).
		Msg("authorization code issued")
	return nil
}

// QueryAuthorizationCode returns the code when it exists, belongs to client
// and has not expired. It does not consume the code.
func (c *Codes) QueryAuthorizationCode(ctx context.Context, code string, client *Client) (*AuthorizationCode, error) {
	if client == nil || client.ClientID == "" || code == "" {
		return nil, nil
	}
	found, err := c.codes.FindCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError(err, "query authorization code")
	}
	return c.usable(found, client), nil
}

// ConsumeAuthorizationCode removes the code from the store and returns it
// when it belonged to client and had not expired. A code is never returned
// by two calls.
func (c *Codes) ConsumeAuthorizationCode(ctx context.Context, code string, client *Client) (*AuthorizationCode, error) {
	if client == nil || client.ClientID == "" || code == "" {
		return nil, nil
	}
	found, err := c.codes.ConsumeCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError(err, "consume authorization code")
	}
	return c.usable(found, client), nil
}

// DeleteAuthorizationCode removes a code. Deleting a missing code succeeds.
func (c *Codes) DeleteAuthorizationCode(ctx context.Context, code string) error {
	err := c.codes.DeleteCode(ctx, code)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return StorageError(err, "delete authorization code")
}

func (c *Codes) usable(code *AuthorizationCode, client *Client) *AuthorizationCode {
	if code.ClientID != client.ClientID {
		c.logger.Warn().
			Str("client_id", client.ClientID).
			Str("code_ref", TokenRef(code.Code)).
			Msg("authorization code presented by another client")
		return nil
	}
	if code.IsExpiredAt(c.now()) {
		c.logger.Debug().Str("code_ref", TokenRef(code.Code)).Msg("authorization code expired")
		return nil
	}
	return code
}
