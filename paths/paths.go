// Package paths provides centralized path resolution for the wrapper's
// shared cache directory.
//
// Everything lives under a single per-user cache root:
//
//   - ~/.cache/rubocop-daemon/running.lock: global bootstrap lock
//   - ~/.cache/rubocop-daemon/<namespace>/: one session directory per project
//   - ~/.cache/rubocop-daemon/config.yaml: optional wrapper configuration
//   - ~/.cache/rubocop-daemon/logs/: wrapper log files
//
// The worker reads the same root through CACHE_DIR, so the layout must stay
// in step with the daemon.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// AppName is the directory name used under ~/.cache.
const AppName = "rubocop-daemon"

// LockFileName is the global bootstrap lock inside the cache directory.
const LockFileName = "running.lock"

const (
	configFileName = "config.yaml"
	logsDirName    = "logs"
)

// ErrNoHome is returned when HOME is not set.
var ErrNoHome = errors.New("HOME env var is not set")

var (
	mu       sync.Mutex
	resolved string
)

// resolve computes the cache root once and caches it.
func resolve() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != "" {
		return resolved, nil
	}

	home := os.Getenv("HOME")
	if home == "" {
		return "", ErrNoHome
	}

	resolved = filepath.Join(home, ".cache", AppName)
	return resolved, nil
}

// CacheDir returns ~/.cache/rubocop-daemon. The directory is not created.
func CacheDir() (string, error) {
	return resolve()
}

// EnsureCacheDir returns the cache root, creating it if necessary.
func EnsureCacheDir() (string, error) {
	dir, err := resolve()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// LockFilePath returns the path of the global bootstrap lock.
func LockFilePath() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LockFileName), nil
}

// ConfigFilePath returns the path of the optional config file.
// RUBOCOP_DAEMON_CONFIG overrides the default location.
func ConfigFilePath() (string, error) {
	if p := os.Getenv("RUBOCOP_DAEMON_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logsDirName), nil
}

// Reset clears the cached path resolution. This is intended for testing only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = ""
}
