package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Artifact file names inside a session directory.
const (
	TokenFile  = "token"
	PortFile   = "port"
	StatusFile = "status"
	StdinFile  = "stdin"
)

// ErrNoStatus is returned when the worker closed the connection without
// leaving a parsable status file behind.
var ErrNoStatus = errors.New("server did not write status to $STATUS_PATH")

// namespaceEscaper makes Namespace injective: the characters used as
// replacements are escaped before separators are rewritten.
var namespaceEscaper = strings.NewReplacer("%", "%25", "+", "%2B", "/", "+")

// Namespace maps a normalized absolute project root to a single flat path
// segment. "/home/u/app" becomes "+home+u+app".
func Namespace(projectRoot string) string {
	return namespaceEscaper.Replace(filepath.ToSlash(projectRoot))
}

// Session holds the paths of every artifact of one project's session.
type Session struct {
	Root       string // Project root the session belongs to
	CacheDir   string // Global cache directory
	Dir        string // Session directory: <CacheDir>/<Namespace(Root)>
	TokenPath  string
	PortPath   string
	StdinPath  string
	StatusPath string
	LockPath   string // Global bootstrap lock, shared by all sessions
}

// New builds the session for projectRoot under cacheDir. lockPath is the
// global lock announced to the worker.
func New(cacheDir, projectRoot, lockPath string) *Session {
	dir := filepath.Join(cacheDir, Namespace(projectRoot))
	return &Session{
		Root:       projectRoot,
		CacheDir:   cacheDir,
		Dir:        dir,
		TokenPath:  filepath.Join(dir, TokenFile),
		PortPath:   filepath.Join(dir, PortFile),
		StdinPath:  filepath.Join(dir, StdinFile),
		StatusPath: filepath.Join(dir, StatusFile),
		LockPath:   lockPath,
	}
}

// HasToken reports whether a worker has announced itself for this session.
func (s *Session) HasToken() bool {
	_, err := os.Stat(s.TokenPath)
	return err == nil
}

// Ready reports whether both token and port have been written.
func (s *Session) Ready() bool {
	if !s.HasToken() {
		return false
	}
	_, err := os.Stat(s.PortPath)
	return err == nil
}

// ReadToken returns the shared secret written by the worker.
func (s *Session) ReadToken() (string, error) {
	data, err := os.ReadFile(s.TokenPath)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", s.TokenPath)
	}
	return token, nil
}

// ReadPort returns the worker's listening port.
func (s *Session) ReadPort() (int, error) {
	data, err := os.ReadFile(s.PortPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read port: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse port file %s: %w", s.PortPath, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d in %s out of range", port, s.PortPath)
	}
	return port, nil
}

// RemoveStatus deletes the status file. A missing file is not an error.
func (s *Session) RemoveStatus() error {
	return removeIfExists(s.StatusPath)
}

// ReadStatus returns the exit status the worker reported for the last
// request. A missing or unparsable file yields ErrNoStatus.
func (s *Session) ReadStatus() (int, error) {
	data, err := os.ReadFile(s.StatusPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoStatus, err)
	}
	status, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoStatus, err)
	}
	return status, nil
}

// ClearStale removes the token and port left by a worker that is no longer
// answering, so the next bootstrap spawns a fresh one.
func (s *Session) ClearStale() error {
	if err := removeIfExists(s.TokenPath); err != nil {
		return err
	}
	return removeIfExists(s.PortPath)
}

// EnsureDir creates the global cache directory.
func (s *Session) EnsureDir() error {
	if err := os.MkdirAll(s.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", s.CacheDir, err)
	}
	return nil
}

// Env returns the environment variables the worker expects at startup.
func (s *Session) Env() []string {
	return []string{
		"CACHE_DIR=" + s.CacheDir,
		"PROJECT_CACHE_DIR=" + s.Dir,
		"TOKEN_PATH=" + s.TokenPath,
		"PORT_PATH=" + s.PortPath,
		"STDIN_PATH=" + s.StdinPath,
		"STATUS_PATH=" + s.StatusPath,
		"LOCK_PATH=" + s.LockPath,
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
