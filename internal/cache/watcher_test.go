package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManifestWatcherInstallsOnChange(t *testing.T) {
	f := newFixture(t, false)
	f.install(t, "v1")

	path := filepath.Join(t.TempDir(), "cache-manifest.yaml")
	if err := os.WriteFile(path, []byte("version: v1\nprefix: test\nstatic: [/app.css]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewManifestWatcher(path, f.proxy)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("version: v2\nprefix: test\nstatic: [/app.css]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if g := f.proxy.Active(); g != nil && g.Version == "v2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("manifest change was not installed")
}
