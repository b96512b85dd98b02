package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xelth-com/magazzino/internal/config"
)

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magazzino.log")
	closer := Setup(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})
	defer log.SetOutput(os.Stderr)

	log.Println("hello rotation")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello rotation") {
		t.Errorf("log file content = %q", data)
	}
}
