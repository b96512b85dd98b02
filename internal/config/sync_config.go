package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SyncSettingsKey is the key-value entry holding the persisted sync settings
const SyncSettingsKey = "sync_config"

// DefaultTableName is the remote table used when none is configured
const DefaultTableName = "Magazzino"

// SyncSettings holds the persisted remote-store connection and run statistics
type SyncSettings struct {
	APIKey       string     `json:"apiKey"`
	CollectionID string     `json:"baseId"`
	TableName    string     `json:"tableName"`
	IsConnected  bool       `json:"isConnected"`
	LastSync     *time.Time `json:"lastSync"`
	Stats        SyncStats  `json:"stats"`
}

// SyncStats are cumulative counters over all sync runs
type SyncStats struct {
	Uploaded    int        `json:"uploaded"`
	Downloaded  int        `json:"downloaded"`
	LastSuccess *time.Time `json:"lastSuccess"`
}

// IsConfigured reports whether credentials are present
func (s SyncSettings) IsConfigured() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.CollectionID) != ""
}

// Table returns the configured table name or the default
func (s SyncSettings) Table() string {
	if t := strings.TrimSpace(s.TableName); t != "" {
		return t
	}
	return DefaultTableName
}

// Redacted returns a copy safe to expose over the API
func (s SyncSettings) Redacted() SyncSettings {
	if len(s.APIKey) > 4 {
		s.APIKey = strings.Repeat("*", len(s.APIKey)-4) + s.APIKey[len(s.APIKey)-4:]
	} else if s.APIKey != "" {
		s.APIKey = "****"
	}
	return s
}

// Blobs is the key-value boundary the settings are persisted through
type Blobs interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// SettingsStore loads and saves SyncSettings as one JSON blob
type SettingsStore struct {
	mu    sync.Mutex
	blobs Blobs
}

// NewSettingsStore creates a settings store over blobs
func NewSettingsStore(blobs Blobs) *SettingsStore {
	return &SettingsStore{blobs: blobs}
}

// Load returns the persisted settings, or defaults when nothing was saved yet
func (s *SettingsStore) Load() (SyncSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save persists settings
func (s *SettingsStore) Save(settings SyncSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// Update performs a locked read-modify-write of the settings
func (s *SettingsStore) Update(fn func(*SyncSettings)) (SyncSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return settings, err
	}
	fn(&settings)
	return settings, s.save(settings)
}

func (s *SettingsStore) load() (SyncSettings, error) {
	settings := SyncSettings{TableName: DefaultTableName}

	data, ok, err := s.blobs.Get(SyncSettingsKey)
	if err != nil {
		return settings, fmt.Errorf("failed to read sync settings: %w", err)
	}
	if !ok {
		return settings, nil
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to decode sync settings: %w", err)
	}
	if settings.TableName == "" {
		settings.TableName = DefaultTableName
	}
	return settings, nil
}

func (s *SettingsStore) save(settings SyncSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode sync settings: %w", err)
	}
	if err := s.blobs.Set(SyncSettingsKey, data); err != nil {
		return fmt.Errorf("failed to write sync settings: %w", err)
	}
	return nil
}
