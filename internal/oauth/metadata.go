package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// DefaultTokenEndpointAuthMethod applies when a client registered no
// token_endpoint_auth_method.
const DefaultTokenEndpointAuthMethod = "client_secret_basic"

// ClientMetadata is the RFC 7591 registration metadata of a client.
// Missing members keep their zero value; the Client accessors apply the
// registration defaults.
type ClientMetadata struct {
	RedirectURIs            []string        `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod string          `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string        `json:"grant_types,omitempty"`
	ResponseTypes           []string        `json:"response_types,omitempty"`
	ClientName              string          `json:"client_name,omitempty"`
	ClientURI               string          `json:"client_uri,omitempty"`
	LogoURI                 string          `json:"logo_uri,omitempty"`
	Scope                   string          `json:"scope,omitempty"`
	Contacts                []string        `json:"contacts,omitempty"`
	TOSURI                  string          `json:"tos_uri,omitempty"`
	PolicyURI               string          `json:"policy_uri,omitempty"`
	JWKSURI                 string          `json:"jwks_uri,omitempty"`
	JWKS                    json.RawMessage `json:"jwks,omitempty"`
	SoftwareID              string          `json:"software_id,omitempty"`
	SoftwareVersion         string          `json:"software_version,omitempty"`
}

// Clone returns a deep copy so snapshots never share backing arrays.
func (m ClientMetadata) Clone() ClientMetadata {
	out := m
	out.RedirectURIs = slices.Clone(m.RedirectURIs)
	out.GrantTypes = slices.Clone(m.GrantTypes)
	out.ResponseTypes = slices.Clone(m.ResponseTypes)
	out.Contacts = slices.Clone(m.Contacts)
	out.JWKS = bytes.Clone(m.JWKS)
	return out
}

// EncodeClientMetadata renders metadata as the JSON object stored with a
// client record.
func EncodeClientMetadata(m ClientMetadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode client metadata: %w", err)
	}
	return data, nil
}

// DecodeClientMetadata parses stored metadata. Empty input and JSON null
// decode to empty metadata; anything that is not an object with the
// expected member types is reported as corrupt.
func DecodeClientMetadata(clientID string, raw []byte) (ClientMetadata, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ClientMetadata{}, nil
	}
	if trimmed[0] != '{' {
		return ClientMetadata{}, MetadataCorruptError(clientID, fmt.Errorf("metadata is not a JSON object"))
	}
	var m ClientMetadata
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return ClientMetadata{}, MetadataCorruptError(clientID, err)
	}
	return m, nil
}
