// Package launcher runs one wrapper invocation end to end: it finds the
// project, makes sure a worker serves it, forwards the command and recovers
// the worker's output and exit status.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rubocop-daemon/wrapper/cli"
	"github.com/rubocop-daemon/wrapper/client"
	"github.com/rubocop-daemon/wrapper/config"
	"github.com/rubocop-daemon/wrapper/exec"
	"github.com/rubocop-daemon/wrapper/lock"
	"github.com/rubocop-daemon/wrapper/logger"
	"github.com/rubocop-daemon/wrapper/paths"
	"github.com/rubocop-daemon/wrapper/process"
	"github.com/rubocop-daemon/wrapper/session"
	"github.com/rubocop-daemon/wrapper/workspace"
)

// Name prefixes operator diagnostics.
const Name = "rubocop-daemon-wrapper"

// Options configures a single invocation. Zero values fall back to the
// process's own environment, streams and working directory.
type Options struct {
	Args   []string // Arguments forwarded to the worker, without the program name
	Dir    string   // Directory the project search starts from
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	LookupEnv func(string) (string, bool)
	Environ   []string // Base environment handed to the worker
	Executor  exec.CommandExecutor
	Config    *config.Config
	CacheDir  string

	// AfterBootstrap runs once the global lock has been released.
	AfterBootstrap func()
}

func (o *Options) setDefaults() error {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	if o.Executor == nil {
		o.Executor = exec.GetDefaultExecutor()
	}
	if o.Config == nil {
		cfg, err := config.Load()
		switch {
		case errors.Is(err, paths.ErrNoHome):
			// The fallback check still runs; the cache step reports HOME
			cfg = config.Default()
		case err != nil:
			return err
		}
		cfg.ApplyEnv(o.LookupEnv)
		o.Config = cfg
	}
	return nil
}

// Run executes the invocation and returns the exit code the wrapper should
// terminate with. A non-nil error is always paired with exit code 1, except
// when the fallback tool ran and reported its own code.
func Run(ctx context.Context, opts Options) (int, error) {
	if err := opts.setDefaults(); err != nil {
		return 1, err
	}
	cfg := opts.Config
	logger.SetDebug(cfg.Debug)
	log := logger.WithInvocation(uuid.NewString())

	if !cli.Installed(opts.Executor, cfg.WorkerCommand) {
		// The fallback owns the terminal; its exit code must come through
		// even when an interrupt reaches the wrapper too.
		return cli.RunFallback(context.WithoutCancel(ctx), opts.Executor, cfg.UseBundler, cfg.FallbackCommand, opts.Args, cli.Stdio{
			In:  opts.Stdin,
			Out: opts.Stdout,
			Err: opts.Stderr,
		})
	}

	cacheDir, err := resolveCacheDir(opts.CacheDir)
	if err != nil {
		return 1, err
	}

	dir := opts.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return 1, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	root := workspace.RootOrStart(dir, cfg.Marker)
	sess := session.New(cacheDir, root, filepath.Join(cacheDir, paths.LockFileName))
	log = log.With("root", root)
	log.Debug("resolved session", "dir", sess.Dir, "args", opts.Args)

	if err := bootstrap(ctx, sess, cfg, opts); err != nil {
		return 1, err
	}
	if opts.AfterBootstrap != nil {
		opts.AfterBootstrap()
	}

	// Once the request is out nothing interrupts the exchange
	reqCtx := context.WithoutCancel(ctx)
	code, err := exchange(reqCtx, sess, cfg, opts)
	if err != nil {
		log.Error("exchange failed", "error", err)
		return 1, err
	}
	log.Debug("exchange complete", "status", code)
	return code, nil
}

func resolveCacheDir(dir string) (string, error) {
	if dir == "" {
		return paths.EnsureCacheDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return dir, nil
}

// bootstrap holds the global lock only while deciding whether to spawn a
// worker, never during the request itself.
func bootstrap(ctx context.Context, sess *session.Session, cfg *config.Config, opts Options) error {
	l, err := lock.Acquire(sess.LockPath)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", sess.LockPath, err)
	}
	defer l.Release()

	_, err = process.EnsureWorker(ctx, sess, process.Options{
		Executor:     opts.Executor,
		Command:      cfg.WorkerCommand,
		UseBundler:   cfg.UseBundler,
		Environ:      opts.Environ,
		Output:       opts.Stderr,
		Probe:        cfg.ProbeWorker,
		Host:         cfg.Host,
		ProbeTimeout: cfg.ProbeTimeout,
		ReadyTimeout: cfg.ReadyTimeout,
	})
	return err
}

func exchange(ctx context.Context, sess *session.Session, cfg *config.Config, opts Options) (int, error) {
	token, err := sess.ReadToken()
	if err != nil {
		return 1, err
	}
	port, err := sess.ReadPort()
	if err != nil {
		return 1, err
	}
	payload, err := client.ResolvePayload(opts.LookupEnv, opts.Args, opts.Stdin)
	if err != nil {
		return 1, err
	}

	conn, err := client.Dial(ctx, cfg.Host, port)
	if err != nil {
		return 1, err
	}
	defer conn.Close()

	if err := sess.RemoveStatus(); err != nil {
		logger.WithComponent("launcher").Warn("failed to remove stale status", "path", sess.StatusPath, "error", err)
	}

	req := client.Request{Token: token, Root: sess.Root, Args: opts.Args, Payload: payload}
	if err := client.Send(conn, req); err != nil {
		return 1, err
	}
	if _, err := client.Relay(conn, opts.Stdout); err != nil {
		return 1, err
	}

	status, err := sess.ReadStatus()
	if err != nil {
		return 1, err
	}
	if err := sess.RemoveStatus(); err != nil {
		logger.WithComponent("launcher").Warn("failed to remove status", "path", sess.StatusPath, "error", err)
	}
	return status, nil
}

// Diagnostic renders err for the operator's terminal.
func Diagnostic(err error) string {
	if errors.Is(err, session.ErrNoStatus) {
		return Name + ": server did not write status to $STATUS_PATH!"
	}
	return Name + ": " + err.Error()
}
