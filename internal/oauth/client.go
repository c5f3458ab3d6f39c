package oauth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Field limits of the client record.
const (
	MaxClientIDLength     = 48
	MaxClientSecretLength = 120
)

// AuthMethodNone marks a public client without a secret.
const AuthMethodNone = "none"

// Client is a registered OAuth 2.0 client application.
//
// Metadata lives in an immutable snapshot that SetClientMetadata swaps
// atomically; every derived accessor reads the current snapshot.
//
// The id and secret fields are plain values owned by whoever loaded the
// client. Stores hand out a fresh instance per lookup, so RotateSecret must
// not run concurrently with other calls on the same instance; persist the
// rotated client with ClientStore.UpdateClient.
type Client struct {
	ClientID              string
	ClientSecret          string
	ClientIDIssuedAt      int64
	ClientSecretExpiresAt int64

	metadata atomic.Pointer[ClientMetadata]
}

// ClientInfo is the client information response of RFC 7591 §3.2.1.
type ClientInfo struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret"`
	ClientIDIssuedAt      int64  `json:"client_id_issued_at"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at"`
}

// NewClient registers a client with a generated id. A secret is generated
// unless the metadata asks for the "none" auth method.
func NewClient(metadata ClientMetadata, now time.Time) (*Client, error) {
	c := &Client{
		ClientID:         uuid.New().String(),
		ClientIDIssuedAt: now.Unix(),
	}
	if metadata.TokenEndpointAuthMethod != AuthMethodNone {
		secret, err := RandomString(48)
		if err != nil {
			return nil, err
		}
		c.ClientSecret = secret
	}
	c.SetClientMetadata(metadata)
	return c, nil
}

// RotateSecret replaces the client secret. A zero ttl means the new secret
// never expires.
func (c *Client) RotateSecret(now time.Time, ttl time.Duration) error {
	secret, err := RandomString(48)
	if err != nil {
		return err
	}
	c.ClientSecret = secret
	c.ClientSecretExpiresAt = 0
	if ttl > 0 {
		c.ClientSecretExpiresAt = now.Add(ttl).Unix()
	}
	return nil
}

// SecretExpired reports whether the secret has a set expiry that has passed.
func (c *Client) SecretExpired(now time.Time) bool {
	return c.ClientSecretExpiresAt != 0 && c.ClientSecretExpiresAt < now.Unix()
}

// Metadata returns a copy of the current metadata snapshot.
func (c *Client) Metadata() ClientMetadata {
	return c.snapshot().Clone()
}

// SetClientMetadata replaces the metadata snapshot.
func (c *Client) SetClientMetadata(m ClientMetadata) {
	snap := m.Clone()
	c.metadata.Store(&snap)
}

func (c *Client) snapshot() *ClientMetadata {
	if m := c.metadata.Load(); m != nil {
		return m
	}
	return &ClientMetadata{}
}

// GetClientID returns the client identifier.
func (c *Client) GetClientID() string {
	return c.ClientID
}

// Info returns the four RFC 7591 §3.2.1 fields and nothing else.
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ClientID:              c.ClientID,
		ClientSecret:          c.ClientSecret,
		ClientIDIssuedAt:      c.ClientIDIssuedAt,
		ClientSecretExpiresAt: c.ClientSecretExpiresAt,
	}
}

// RedirectURIs returns the registered redirect URIs.
func (c *Client) RedirectURIs() []string {
	return slices.Clone(c.snapshot().RedirectURIs)
}

// TokenEndpointAuthMethod returns the registered auth method, defaulting
// to client_secret_basic.
func (c *Client) TokenEndpointAuthMethod() string {
	if m := c.snapshot().TokenEndpointAuthMethod; m != "" {
		return m
	}
	return DefaultTokenEndpointAuthMethod
}

// GrantTypes returns the registered grant types.
func (c *Client) GrantTypes() []string {
	return slices.Clone(c.snapshot().GrantTypes)
}

// ResponseTypes returns the registered response types.
func (c *Client) ResponseTypes() []string {
	return slices.Clone(c.snapshot().ResponseTypes)
}

// String metadata accessors. Unset members read as "".

func (c *Client) ClientName() string      { return c.snapshot().ClientName }
func (c *Client) ClientURI() string       { return c.snapshot().ClientURI }
func (c *Client) LogoURI() string         { return c.snapshot().LogoURI }
func (c *Client) Scope() string           { return c.snapshot().Scope }
func (c *Client) TOSURI() string          { return c.snapshot().TOSURI }
func (c *Client) PolicyURI() string       { return c.snapshot().PolicyURI }
func (c *Client) JWKSURI() string         { return c.snapshot().JWKSURI }
func (c *Client) SoftwareID() string      { return c.snapshot().SoftwareID }
func (c *Client) SoftwareVersion() string { return c.snapshot().SoftwareVersion }

// Contacts returns the registered contact addresses.
func (c *Client) Contacts() []string {
	return slices.Clone(c.snapshot().Contacts)
}

// JWKS returns the registered key set as raw JSON, or an empty JSON array
// when none is registered.
func (c *Client) JWKS() json.RawMessage {
	if jwks := c.snapshot().JWKS; len(jwks) > 0 {
		return bytes.Clone(jwks)
	}
	return json.RawMessage("[]")
}

// DefaultRedirectURI returns the first registered redirect URI, used when
// an authorization request omits redirect_uri.
func (c *Client) DefaultRedirectURI() (string, bool) {
	uris := c.snapshot().RedirectURIs
	if len(uris) == 0 {
		return "", false
	}
	return uris[0], true
}

// AllowedScope narrows a requested scope to the tokens the client is
// registered for, keeping the order of the request. Unregistered tokens
// are dropped, never granted.
func (c *Client) AllowedScope(scope string) string {
	if scope == "" {
		return ""
	}
	allowed := make(map[string]struct{})
	for _, s := range ScopeToList(c.Scope()) {
		allowed[s] = struct{}{}
	}
	var granted []string
	for _, s := range ScopeToList(scope) {
		if _, ok := allowed[s]; ok {
			granted = append(granted, s)
		}
	}
	return ListToScope(granted)
}

// CheckRedirectURI matches uri exactly against the registered URIs.
func (c *Client) CheckRedirectURI(uri string) bool {
	return slices.Contains(c.snapshot().RedirectURIs, uri)
}

// HasClientSecret reports whether the client is confidential.
func (c *Client) HasClientSecret() bool {
	return c.ClientSecret != ""
}

// CheckClientSecret compares in constant time.
func (c *Client) CheckClientSecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(secret)) == 1
}

// CheckTokenEndpointAuthMethod reports whether method is the registered one.
func (c *Client) CheckTokenEndpointAuthMethod(method string) bool {
	return c.TokenEndpointAuthMethod() == method
}

// CheckResponseType reports whether responseType is registered.
func (c *Client) CheckResponseType(responseType string) bool {
	return slices.Contains(c.snapshot().ResponseTypes, responseType)
}

// CheckGrantType reports whether grantType is registered.
func (c *Client) CheckGrantType(grantType string) bool {
	return slices.Contains(c.snapshot().GrantTypes, grantType)
}

// Validate checks the field limits of the client record.
func (c *Client) Validate() error {
	switch {
	case c.ClientID == "":
		return validationError("client_id is required")
	case len(c.ClientID) > MaxClientIDLength:
		return validationError("client_id is too long")
	case len(c.ClientSecret) > MaxClientSecretLength:
		return validationError("client_secret is too long")
	}
	return nil
}
