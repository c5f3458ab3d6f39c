package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

// ClientEntry is one client in the YAML registry file.
type ClientEntry struct {
	ClientID              string         `yaml:"client_id"`
	ClientSecret          string         `yaml:"client_secret,omitempty"`
	ClientIDIssuedAt      int64          `yaml:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64          `yaml:"client_secret_expires_at,omitempty"`
	Metadata              map[string]any `yaml:"metadata,omitempty"`
}

type registryFile struct {
	Clients []ClientEntry `yaml:"clients"`
}

// FileClientStore reads registered clients from a YAML file and writes
// changes back to it. The file is reloaded when its modification time
// moves forward.
type FileClientStore struct {
	filePath    string
	clients     map[string]ClientEntry
	lastModTime time.Time
	mu          sync.RWMutex
}

var _ oauth.ClientStore = (*FileClientStore)(nil)

// NewFileClientStore loads client entries from a YAML file.
func NewFileClientStore(filePath string) (*FileClientStore, error) {
	store := &FileClientStore{
		filePath: filePath,
		clients:  make(map[string]ClientEntry),
	}
	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load clients file: %w", err)
	}
	return store, nil
}

func (s *FileClientStore) load() error {
	absPath, err := filepath.Abs(s.filePath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(absPath)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.clients = make(map[string]ClientEntry)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read clients file: %w", err)
	}

	var reg registryFile
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &reg); err != nil {
			return fmt.Errorf("failed to parse clients YAML: %w", err)
		}
	}

	clients := make(map[string]ClientEntry, len(reg.Clients))
	for _, entry := range reg.Clients {
		if entry.ClientID == "" {
			return fmt.Errorf("clients file has an entry without client_id")
		}
		clients[entry.ClientID] = entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = clients
	if stat, err := os.Stat(absPath); err == nil {
		s.lastModTime = stat.ModTime()
	}
	return nil
}

func (s *FileClientStore) save() error {
	s.mu.RLock()
	list := make([]ClientEntry, 0, len(s.clients))
	for _, entry := range s.clients {
		list = append(list, entry)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].ClientID < list[j].ClientID
	})

	data, err := yaml.Marshal(registryFile{Clients: list})
	if err != nil {
		return err
	}
	absPath, err := filepath.Abs(s.filePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return err
	}
	// Secrets live in this file.
	if err := os.WriteFile(absPath, data, 0o600); err != nil {
		return err
	}
	if stat, err := os.Stat(absPath); err == nil {
		s.mu.Lock()
		s.lastModTime = stat.ModTime()
		s.mu.Unlock()
	}
	return nil
}

func (s *FileClientStore) checkAndReload() error {
	absPath, err := filepath.Abs(s.filePath)
	if err != nil {
		return err
	}
	stat, err := os.Stat(absPath)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	lastMod := s.lastModTime
	s.mu.RUnlock()
	if stat.ModTime().After(lastMod) {
		return s.load()
	}
	return nil
}

func (s *FileClientStore) CreateClient(_ context.Context, client *oauth.Client) error {
	if err := s.checkAndReload(); err != nil {
		return oauth.StorageError(err, "reload clients file")
	}
	entry, err := entryFromClient(client)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, exists := s.clients[client.ClientID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("client %s: %w", client.ClientID, oauth.ErrDuplicate)
	}
	s.clients[client.ClientID] = entry
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return oauth.StorageError(err, "write clients file")
	}
	return nil
}

func (s *FileClientStore) UpdateClient(_ context.Context, client *oauth.Client) error {
	if err := s.checkAndReload(); err != nil {
		return oauth.StorageError(err, "reload clients file")
	}
	entry, err := entryFromClient(client)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, exists := s.clients[client.ClientID]; !exists {
		s.mu.Unlock()
		return oauth.ErrNotFound
	}
	s.clients[client.ClientID] = entry
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return oauth.StorageError(err, "write clients file")
	}
	return nil
}

func (s *FileClientStore) FindClient(_ context.Context, clientID string) (*oauth.Client, error) {
	if err := s.checkAndReload(); err != nil {
		return nil, oauth.StorageError(err, "reload clients file")
	}
	s.mu.RLock()
	entry, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil, oauth.ErrNotFound
	}
	return entry.Client()
}

// Clients returns every registered client ordered by id.
func (s *FileClientStore) Clients() ([]*oauth.Client, error) {
	if err := s.checkAndReload(); err != nil {
		return nil, oauth.StorageError(err, "reload clients file")
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*oauth.Client, 0, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		entry := s.clients[id]
		s.mu.RUnlock()
		client, err := entry.Client()
		if err != nil {
			return nil, err
		}
		out = append(out, client)
	}
	return out, nil
}

// Client converts the entry into a client. Metadata that does not decode
// into the expected member types is reported as corrupt.
func (e ClientEntry) Client() (*oauth.Client, error) {
	var raw []byte
	if e.Metadata != nil {
		var err error
		raw, err = json.Marshal(e.Metadata)
		if err != nil {
			return nil, oauth.MetadataCorruptError(e.ClientID, err)
		}
	}
	md, err := oauth.DecodeClientMetadata(e.ClientID, raw)
	if err != nil {
		return nil, err
	}
	client := &oauth.Client{
		ClientID:              e.ClientID,
		ClientSecret:          e.ClientSecret,
		ClientIDIssuedAt:      e.ClientIDIssuedAt,
		ClientSecretExpiresAt: e.ClientSecretExpiresAt,
	}
	client.SetClientMetadata(md)
	return client, nil
}

func entryFromClient(client *oauth.Client) (ClientEntry, error) {
	raw, err := oauth.EncodeClientMetadata(client.Metadata())
	if err != nil {
		return ClientEntry{}, err
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return ClientEntry{}, err
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return ClientEntry{
		ClientID:              client.ClientID,
		ClientSecret:          client.ClientSecret,
		ClientIDIssuedAt:      client.ClientIDIssuedAt,
		ClientSecretExpiresAt: client.ClientSecretExpiresAt,
		Metadata:              metadata,
	}, nil
}
