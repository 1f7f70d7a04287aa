// Package config loads ucad's optional YAML configuration file the way
// cmd/andorhttp3/main.go loads andor-http.yml: koanf seeded with
// defaults via a structs.Provider, then overlaid by a file.Provider if
// present, tolerant of a missing file.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/ufo-kit/uca-net/wire"
)

// Config is ucad's configuration surface.
type Config struct {
	// Port is the TCP port ucad listens on (§6.3).
	Port int `yaml:"Port"`

	// BlobRoot is the root directory camera.Write blobs are persisted
	// under (supplementing §4.3's Write handler). Empty disables
	// persistence.
	BlobRoot string `yaml:"BlobRoot"`

	// AdminAddr is the optional read-only admin HTTP listen address
	// (e.g. ":8990"); empty disables the admin surface.
	AdminAddr string `yaml:"AdminAddr"`

	// BootupArgs are property values applied immediately after the
	// camera driver is constructed, mirroring andorhttp3's BootupArgs.
	BootupArgs map[string]string `yaml:"BootupArgs"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Port:       wire.DefaultPort,
		BlobRoot:   "",
		AdminAddr:  "",
		BootupArgs: map[string]string{},
	}
}

// Load seeds k with Default() and overlays path if it exists, the way
// setupconfig in cmd/andorhttp3/main.go does. A missing file is not an
// error.
func Load(k *koanf.Koanf, path string) error {
	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return err
	}
	err := k.Load(file.Provider(path), yaml.Parser())
	if err != nil && !strings.Contains(err.Error(), "no such") {
		return err
	}
	return nil
}
