package config

import (
	"testing"
	"time"
)

type mapBlobs map[string][]byte

func (m mapBlobs) Get(key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBlobs) Set(key string, value []byte) error {
	m[key] = value
	return nil
}

func TestSettingsStoreDefaults(t *testing.T) {
	store := NewSettingsStore(mapBlobs{})

	settings, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.TableName != DefaultTableName {
		t.Errorf("TableName = %q, want %q", settings.TableName, DefaultTableName)
	}
	if settings.IsConfigured() {
		t.Error("empty settings should not be configured")
	}
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	blobs := mapBlobs{}
	store := NewSettingsStore(blobs)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	in := SyncSettings{
		APIKey:       "keyABC",
		CollectionID: "appXYZ",
		TableName:    "Scorte",
		IsConnected:  true,
		LastSync:     &now,
		Stats:        SyncStats{Uploaded: 3, Downloaded: 7, LastSuccess: &now},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := NewSettingsStore(blobs).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.APIKey != in.APIKey || out.Table() != "Scorte" || out.Stats.Downloaded != 7 {
		t.Errorf("Load = %+v, want %+v", out, in)
	}
	if out.Stats.LastSuccess == nil || !out.Stats.LastSuccess.Equal(now) {
		t.Errorf("LastSuccess = %v, want %v", out.Stats.LastSuccess, now)
	}
}

func TestSettingsStoreUpdate(t *testing.T) {
	store := NewSettingsStore(mapBlobs{})

	_, err := store.Update(func(s *SyncSettings) { s.Stats.Uploaded += 2 })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := store.Update(func(s *SyncSettings) { s.Stats.Uploaded += 3 })
	if got.Stats.Uploaded != 5 {
		t.Errorf("Uploaded = %d, want 5", got.Stats.Uploaded)
	}
}

func TestRedacted(t *testing.T) {
	s := SyncSettings{APIKey: "patSECRET1234"}
	if got := s.Redacted().APIKey; got != "*********1234" {
		t.Errorf("Redacted = %q", got)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoadRemoteDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test")
	t.Setenv("REMOTE_BACKOFF_BASE", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.MaxAttempts != 3 || cfg.Remote.PageSize != 100 || cfg.Remote.DeleteBatchSize != 5 {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Remote.BackoffBase != 250*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 250ms", cfg.Remote.BackoffBase)
	}
}
