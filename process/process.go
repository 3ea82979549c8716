// Package process starts the rubocop-daemon worker for a session when none
// is running.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rubocop-daemon/wrapper/cli"
	"github.com/rubocop-daemon/wrapper/client"
	"github.com/rubocop-daemon/wrapper/exec"
	"github.com/rubocop-daemon/wrapper/logger"
	"github.com/rubocop-daemon/wrapper/session"
)

// startDirective is the worker subcommand that boots and daemonizes it.
const startDirective = "start"

// readyPollInterval is how often the session is checked after spawning.
const readyPollInterval = 20 * time.Millisecond

// ErrNotReady is returned when the spawned worker returned successfully but
// token and port did not appear within the ready timeout.
var ErrNotReady = errors.New("worker did not write token and port")

// SpawnError reports a worker start that failed or exited non-zero.
type SpawnError struct {
	Command string
	Code    int // -1 when the process could not be started
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("%s failed: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Options controls how the worker is located, checked and started.
type Options struct {
	Executor   exec.CommandExecutor
	Command    string // Worker executable, e.g. "rubocop-daemon"
	UseBundler bool
	Environ    []string  // Base environment; nil means os.Environ()
	Output     io.Writer // Receives the worker's start-up output

	// Probe connects to an existing worker before trusting its token and
	// discards the session files when nothing answers.
	Probe        bool
	Host         string
	ProbeTimeout time.Duration

	ReadyTimeout time.Duration
}

// EnsureWorker makes sure a worker is serving sess. When the session
// already has a token the worker is assumed alive; otherwise the worker is
// spawned synchronously with the session paths in its environment. It
// reports whether a worker was spawned. Callers hold the global lock.
func EnsureWorker(ctx context.Context, sess *session.Session, opts Options) (bool, error) {
	log := logger.WithComponent("process").With("root", sess.Root)

	if sess.HasToken() {
		if !opts.Probe {
			log.Debug("worker token present, skipping spawn")
			return false, nil
		}
		err := probeSession(ctx, sess, opts)
		if err == nil {
			log.Debug("worker answered probe")
			return false, nil
		}
		log.Warn("worker did not answer probe, discarding session", "error", err)
		if err := sess.ClearStale(); err != nil {
			return false, fmt.Errorf("failed to clear stale session %s: %w", sess.Dir, err)
		}
	}

	if err := spawn(ctx, sess, opts); err != nil {
		return false, err
	}

	if err := waitReady(ctx, sess, opts.ReadyTimeout); err != nil {
		return true, err
	}
	log.Info("worker started", "dir", sess.Dir)
	return true, nil
}

func spawn(ctx context.Context, sess *session.Session, opts Options) error {
	executor := opts.Executor
	if executor == nil {
		executor = exec.GetDefaultExecutor()
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	name, args := cli.Invocation(opts.UseBundler, opts.Command, startDirective)
	cmd := exec.Command{
		Name:   name,
		Args:   args,
		Env:    append(append([]string(nil), environ...), sess.Env()...),
		Stdout: opts.Output,
		Stderr: opts.Output,
	}

	logger.WithComponent("process").Debug("spawning worker", "command", cmd.String(), "dir", sess.Dir)

	err := executor.Run(ctx, cmd)
	if err == nil {
		return nil
	}
	if code, ok := exec.ExitCode(err); ok {
		return &SpawnError{Command: cmd.String(), Code: code, Err: err}
	}
	return &SpawnError{Command: cmd.String(), Code: -1, Err: err}
}

// waitReady polls until token and port exist. The worker normally writes
// both before its start command returns, so the first check succeeds.
func waitReady(ctx context.Context, sess *session.Session, timeout time.Duration) error {
	if sess.Ready() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if sess.Ready() {
				return nil
			}
			return fmt.Errorf("%w within %v (%s)", ErrNotReady, timeout, sess.Dir)
		case <-ticker.C:
			if sess.Ready() {
				return nil
			}
		}
	}
}

func probeSession(ctx context.Context, sess *session.Session, opts Options) error {
	port, err := sess.ReadPort()
	if err != nil {
		return err
	}
	return Probe(ctx, opts.Host, port, opts.ProbeTimeout)
}

// Probe checks that something accepts connections on host:port. The
// connection is closed without sending a request.
func Probe(ctx context.Context, host string, port int, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := client.Dial(ctx, host, port)
	if err != nil {
		return err
	}
	return conn.Close()
}
