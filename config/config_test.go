package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf"

	"github.com/ufo-kit/uca-net/config"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	k := koanf.New(".")
	if err := config.Load(k, filepath.Join(t.TempDir(), "does-not-exist.yml")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var cfg config.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := config.Default()
	if cfg.Port != want.Port {
		t.Fatalf("got Port %d, want %d", cfg.Port, want.Port)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ucad.yml")
	contents := "Port: 9999\nBlobRoot: /tmp/blobs\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	k := koanf.New(".")
	if err := config.Load(k, path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var cfg config.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("got Port %d, want 9999", cfg.Port)
	}
	if cfg.BlobRoot != "/tmp/blobs" {
		t.Fatalf("got BlobRoot %q, want /tmp/blobs", cfg.BlobRoot)
	}
}
