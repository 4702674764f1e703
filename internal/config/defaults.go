package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values
const (
	// Source defaults
	DefaultPageSize      = 30
	DefaultSourceTimeout = 30 * time.Second

	// Segmentation defaults
	DefaultMaxSegmentChars = 6000

	// Cache defaults
	DefaultCacheEnabled = true
	DefaultCacheTTL     = 30 * time.Minute

	// Index defaults
	DefaultIndexTimeout = 60 * time.Second

	// Archive defaults
	DefaultArchiveDir = "./articles"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "pretty"
)

// ConfigDir returns the kbsync config directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".kbsync")
}

// StateDir returns the default identity snapshot directory
func StateDir() string {
	return filepath.Join(ConfigDir(), "state")
}

// CacheDir returns the default page cache directory
func CacheDir() string {
	return filepath.Join(ConfigDir(), "cache")
}
