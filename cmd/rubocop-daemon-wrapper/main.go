// Command rubocop-daemon-wrapper forwards a rubocop invocation to a
// per-project rubocop-daemon worker, starting the worker when needed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rubocop-daemon/wrapper/launcher"
	"github.com/rubocop-daemon/wrapper/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer logger.Close()

	// Interrupts only abort the bootstrap; once the lock is released the
	// default disposition applies again.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := launcher.Run(ctx, launcher.Options{
		Args:           os.Args[1:],
		Environ:        os.Environ(),
		AfterBootstrap: stop,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, launcher.Diagnostic(err))
	}
	return code
}
