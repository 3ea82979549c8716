// Package exec provides an abstraction over command execution for testability.
// It allows production code to use real exec.Command while tests
// can inject mock executors that return pre-recorded responses.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// Command describes a process to run. Nil streams are connected to the
// null device, as with os/exec.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string // Full environment; nil inherits the caller's
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ExitError reports that a command ran but exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts the exit status from an error returned by Run.
// It returns (0, true) for a nil error and (0, false) when err does not
// describe an exited process.
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// Run executes a command and waits for it. A non-zero exit is
	// reported as *ExitError.
	Run(ctx context.Context, cmd Command) error

	// LookPath searches PATH for an executable.
	LookPath(file string) (string, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and waits for it to finish.
func (e *RealExecutor) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

// LookPath searches PATH for an executable.
func (e *RealExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int   // Non-zero yields *ExitError
	Err      error // Takes precedence over ExitCode

	// Do runs before the response is returned, letting tests emulate side
	// effects such as a worker writing its token file.
	Do func(cmd Command) error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(name string, args []string) bool

// MockRule defines a matching rule and its response.
type MockRule struct {
	Match    CommandMatcher
	Response MockResponse
}

// MockExecutor returns pre-recorded responses for commands.
// Commands are matched in order of rule registration.
type MockExecutor struct {
	mu       sync.RWMutex
	rules    []MockRule
	calls    []Command
	paths    map[string]string
	fallback CommandExecutor
}

// NewMockExecutor creates a new MockExecutor.
// If fallback is provided, unmatched commands will be delegated to it.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{
		fallback: fallback,
		paths:    make(map[string]string),
	}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, MockRule{Match: match, Response: response})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}, response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		if n != name || len(a) < len(prefixArgs) {
			return false
		}
		return slices.Equal(a[:len(prefixArgs)], prefixArgs)
	}, response)
}

// AddPath registers an executable for LookPath.
func (e *MockExecutor) AddPath(file, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths[file] = path
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []Command {
	e.mu.RLock()
	defer e.mu.RUnlock()
	calls := make([]Command, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// ClearCalls clears the recorded command invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func (e *MockExecutor) findMatch(name string, args []string) *MockResponse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.rules {
		if rule.Match(name, args) {
			return &rule.Response
		}
	}
	return nil
}

func (e *MockExecutor) recordCall(cmd Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, cmd)
}

// Run executes a mocked command.
func (e *MockExecutor) Run(ctx context.Context, cmd Command) error {
	e.recordCall(cmd)

	resp := e.findMatch(cmd.Name, cmd.Args)
	if resp == nil {
		if e.fallback != nil {
			return e.fallback.Run(ctx, cmd)
		}
		// Default: empty success
		return nil
	}

	if resp.Do != nil {
		if err := resp.Do(cmd); err != nil {
			return err
		}
	}
	if cmd.Stdout != nil && len(resp.Stdout) > 0 {
		cmd.Stdout.Write(resp.Stdout)
	}
	if cmd.Stderr != nil && len(resp.Stderr) > 0 {
		cmd.Stderr.Write(resp.Stderr)
	}
	if resp.Err != nil {
		return resp.Err
	}
	if resp.ExitCode != 0 {
		return &ExitError{Code: resp.ExitCode}
	}
	return nil
}

// LookPath resolves registered executables, then the fallback.
func (e *MockExecutor) LookPath(file string) (string, error) {
	e.mu.RLock()
	path, ok := e.paths[file]
	e.mu.RUnlock()
	if ok {
		return path, nil
	}
	if e.fallback != nil {
		return e.fallback.LookPath(file)
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

// Ensure implementations satisfy the interface.
var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)

// defaultExecutorMu protects defaultExecutor for concurrent access.
var defaultExecutorMu sync.RWMutex

// defaultExecutor is the global default executor (can be swapped for testing).
var defaultExecutor CommandExecutor = NewRealExecutor()

// GetDefaultExecutor returns the global default executor.
func GetDefaultExecutor() CommandExecutor {
	defaultExecutorMu.RLock()
	defer defaultExecutorMu.RUnlock()
	return defaultExecutor
}

// SetDefaultExecutor sets the global default executor.
func SetDefaultExecutor(e CommandExecutor) {
	defaultExecutorMu.Lock()
	defer defaultExecutorMu.Unlock()
	defaultExecutor = e
}
