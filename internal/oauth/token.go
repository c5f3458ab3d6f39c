package oauth

import "time"

const (
	MaxTokenLength     = 255
	MaxTokenTypeLength = 40
)

// Token hint values of RFC 7009.
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// Token is an issued access token, optionally paired with a refresh token.
// Revoked only ever moves from false to true.
type Token struct {
	ClientID     string
	UserID       string
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scope        string
	Revoked      bool
	IssuedAt     int64
	ExpiresIn    int64
}

// Field getters used by the grant handlers.
func (t *Token) GetClientID() string { return t.ClientID }
func (t *Token) GetScope() string    { return t.Scope }
func (t *Token) GetExpiresIn() int64 { return t.ExpiresIn }

// GetExpiresAt is IssuedAt + ExpiresIn in epoch seconds.
func (t *Token) GetExpiresAt() int64 {
	return t.IssuedAt + t.ExpiresIn
}

// IsExpiredAt reports whether the token has expired at now. Tokens with a
// zero ExpiresIn never expire.
func (t *Token) IsExpiredAt(now time.Time) bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	return t.GetExpiresAt() < now.Unix()
}

// Validate checks the field limits of the token record.
func (t *Token) Validate() error {
	switch {
	case t.AccessToken == "":
		return validationError("access_token is required")
	case len(t.AccessToken) > MaxTokenLength:
		return validationError("access_token is too long")
	case len(t.RefreshToken) > MaxTokenLength:
		return validationError("refresh_token is too long")
	case len(t.ClientID) > MaxClientIDLength:
		return validationError("client_id is too long")
	case len(t.TokenType) > MaxTokenTypeLength:
		return validationError("token_type is too long")
	}
	return nil
}
