package oauth

import "time"

// CodeLifetime is the validity window of an authorization code, counted
// from its auth time.
const CodeLifetime int64 = 300

const (
	MaxCodeLength                = 120
	MaxCodeChallengeMethodLength = 48
)

// AuthorizationCode is a single-use credential issued by the authorization
// endpoint. PKCE fields are stored and returned as-is; verifying them is the
// grant handler's job.
type AuthorizationCode struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	UserID              string `json:"user_id,omitempty"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	Scope               string `json:"scope"`
	Nonce               string `json:"nonce,omitempty"`
	AuthTime            int64  `json:"auth_time"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// IsExpired reports whether the code is past its validity window.
func (c *AuthorizationCode) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt is IsExpired against a given instant. A code exactly at the
// end of its window is still valid.
func (c *AuthorizationCode) IsExpiredAt(now time.Time) bool {
	return c.AuthTime+CodeLifetime < now.Unix()
}

// ExpiresAt is the last second at which the code is still valid.
func (c *AuthorizationCode) ExpiresAt() time.Time {
	return time.Unix(c.AuthTime+CodeLifetime, 0)
}

// Field getters used by the grant handlers.
func (c *AuthorizationCode) GetRedirectURI() string { return c.RedirectURI }
func (c *AuthorizationCode) GetScope() string       { return c.Scope }
func (c *AuthorizationCode) GetAuthTime() int64     { return c.AuthTime }
func (c *AuthorizationCode) GetNonce() string       { return c.Nonce }

// Validate checks the field limits of the code record.
func (c *AuthorizationCode) Validate() error {
	switch {
	case c.Code == "":
		return validationError("code is required")
	case len(c.Code) > MaxCodeLength:
		return validationError("code is too long")
	case len(c.ClientID) > MaxClientIDLength:
		return validationError("client_id is too long")
	case len(c.CodeChallengeMethod) > MaxCodeChallengeMethodLength:
		return validationError("code_challenge_method is too long")
	}
	return nil
}
