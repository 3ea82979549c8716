// Package session describes the per-project files shared between the
// wrapper and a running rubocop-daemon worker.
//
// # Overview
//
// Each project root gets its own worker and its own session directory
// under the global cache:
//
//	~/.cache/rubocop-daemon/<namespace>/
//
// where <namespace> is the project root with path separators replaced by
// "+" (see Namespace). The directory holds four artifacts:
//
//   - token: shared secret, written by the worker at startup
//   - port: listening TCP port as decimal text, written by the worker at startup
//   - status: exit status of the most recent command, written by the worker
//     after finishing a request
//   - stdin: payload hand-off path, declared to the worker only
//
// # Ownership
//
// The worker is the sole writer of token, port and status. The wrapper only
// reads them, and deletes status immediately before sending a request and
// again right after consuming it, so the presence of status after an
// exchange always belongs to that exchange.
//
// The session also carries the path of the global lock file so the worker
// can be told where it lives; the lock itself is managed by package lock.
package session
