package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

// MemoryStore keeps clients, tokens and authorization codes in process
// memory. It is used for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*oauth.Client
	tokens  map[string]oauth.Token // keyed by access token
	codes   map[string]oauth.AuthorizationCode
	order   []string // access tokens in insertion order
}

var (
	_ oauth.ClientStore = (*MemoryStore)(nil)
	_ oauth.TokenStore  = (*MemoryStore)(nil)
	_ oauth.CodeStore   = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*oauth.Client),
		tokens:  make(map[string]oauth.Token),
		codes:   make(map[string]oauth.AuthorizationCode),
	}
}

// CreateClient stores a copy of client.
func (s *MemoryStore) CreateClient(_ context.Context, client *oauth.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.ClientID]; exists {
		return fmt.Errorf("client %s: %w", client.ClientID, oauth.ErrDuplicate)
	}
	s.clients[client.ClientID] = copyClient(client)
	return nil
}

// UpdateClient replaces the stored copy of client.
func (s *MemoryStore) UpdateClient(_ context.Context, client *oauth.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.ClientID]; !exists {
		return oauth.ErrNotFound
	}
	s.clients[client.ClientID] = copyClient(client)
	return nil
}

// FindClient returns a fresh copy of the stored client.
func (s *MemoryStore) FindClient(_ context.Context, clientID string) (*oauth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	return copyClient(client), nil
}

// CreateToken stores a copy of token.
func (s *MemoryStore) CreateToken(_ context.Context, token *oauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.AccessToken]; exists {
		return fmt.Errorf("token: %w", oauth.ErrDuplicate)
	}
	s.tokens[token.AccessToken] = *token
	s.order = append(s.order, token.AccessToken)
	return nil
}

// FindToken returns the most recently issued match, as the SQL store does.
func (s *MemoryStore) FindToken(_ context.Context, filter oauth.TokenFilter) (*oauth.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *oauth.Token
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.tokens[s.order[i]]
		if !tokenMatches(t, filter) {
			continue
		}
		if best == nil || t.IssuedAt > best.IssuedAt {
			found := t
			best = &found
		}
	}
	if best == nil {
		return nil, oauth.ErrNotFound
	}
	return best, nil
}

func tokenMatches(t oauth.Token, f oauth.TokenFilter) bool {
	switch {
	case f.ClientID != "" && t.ClientID != f.ClientID:
		return false
	case f.AccessToken != "" && t.AccessToken != f.AccessToken:
		return false
	case f.RefreshToken != "" && t.RefreshToken != f.RefreshToken:
		return false
	case f.ActiveOnly && t.Revoked:
		return false
	}
	return true
}

// RevokeToken marks the token revoked.
func (s *MemoryStore) RevokeToken(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[accessToken]
	if !ok {
		return oauth.ErrNotFound
	}
	t.Revoked = true
	s.tokens[accessToken] = t
	return nil
}

// CreateCode stores a copy of code.
func (s *MemoryStore) CreateCode(_ context.Context, code *oauth.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codes[code.Code]; exists {
		return fmt.Errorf("authorization code: %w", oauth.ErrDuplicate)
	}
	s.codes[code.Code] = *code
	return nil
}

// FindCode returns a copy of the stored code.
func (s *MemoryStore) FindCode(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	return &c, nil
}

// ConsumeCode removes and returns the stored code.
func (s *MemoryStore) ConsumeCode(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	delete(s.codes, code)
	return &c, nil
}

// DeleteCode removes the stored code.
func (s *MemoryStore) DeleteCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

// Ping and Close are no-ops.
func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

// copyClient detaches the stored record from the caller's value so that a
// later SetClientMetadata on either side does not leak into the other.
func copyClient(c *oauth.Client) *oauth.Client {
	out := &oauth.Client{
		ClientID:              c.ClientID,
		ClientSecret:          c.ClientSecret,
		ClientIDIssuedAt:      c.ClientIDIssuedAt,
		ClientSecretExpiresAt: c.ClientSecretExpiresAt,
	}
	out.SetClientMetadata(c.Metadata())
	return out
}
