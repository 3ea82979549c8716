// Package cli locates the command-line tools the wrapper drives and runs
// the plain linter when the worker is not installed.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rubocop-daemon/wrapper/exec"
	"github.com/rubocop-daemon/wrapper/logger"
)

// bundlerArgs prefix a command so it runs inside the project's bundle.
var bundlerArgs = []string{"bundle", "exec"}

// Stdio holds the streams handed to a child process.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Invocation returns the executable and argument list for running tool
// with args, prefixed with "bundle exec" when useBundler is set.
func Invocation(useBundler bool, tool string, args ...string) (string, []string) {
	if !useBundler {
		return tool, append([]string(nil), args...)
	}
	full := make([]string, 0, len(bundlerArgs)-1+1+len(args))
	full = append(full, bundlerArgs[1:]...)
	full = append(full, tool)
	full = append(full, args...)
	return bundlerArgs[0], full
}

// Installed reports whether name resolves on PATH.
func Installed(executor exec.CommandExecutor, name string) bool {
	_, err := executor.LookPath(name)
	return err == nil
}

// RunFallback runs the fallback linter with the wrapper's own arguments,
// inheriting the given streams, and returns its exit code.
func RunFallback(ctx context.Context, executor exec.CommandExecutor, useBundler bool, tool string, args []string, stdio Stdio) (int, error) {
	name, full := Invocation(useBundler, tool, args...)
	cmd := exec.Command{
		Name:   name,
		Args:   full,
		Stdin:  stdio.In,
		Stdout: stdio.Out,
		Stderr: stdio.Err,
	}

	logger.WithComponent("cli").Info("worker not installed, running fallback", "command", cmd.String())

	err := executor.Run(ctx, cmd)
	if code, ok := exec.ExitCode(err); ok {
		return code, nil
	}
	return 1, fmt.Errorf("fallback %s failed: %w", cmd.String(), err)
}
