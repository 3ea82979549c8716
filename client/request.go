// Package client speaks the wrapper side of the worker's wire protocol.
//
// A request is one plaintext line followed by the raw payload:
//
//	<token> <project root> exec <arg> <arg> ...\n<payload bytes>
//
// The wrapper half-closes its send direction to mark the end of the
// payload. The worker streams its output back on the same connection and
// closes it when done; the exit status travels separately through the
// session's status file.
package client

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

const execKeyword = "exec"

// Flags that make the wrapped tool read the file content from stdin.
var stdinFlags = []string{"--stdin", "-s"}

// EnvStdinContent supplies the payload directly, bypassing stdin.
const EnvStdinContent = "STDIN_CONTENT"

// Request is a single command forwarded to the worker.
type Request struct {
	Token   string
	Root    string
	Args    []string
	Payload []byte
}

// Encode renders the request frame.
func (r Request) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(r.Token)
	b.WriteByte(' ')
	b.WriteString(r.Root)
	b.WriteByte(' ')
	b.WriteString(execKeyword)
	b.WriteByte(' ')
	b.WriteString(strings.Join(r.Args, " "))
	b.WriteByte('\n')
	b.Write(r.Payload)
	return b.Bytes()
}

// ParseRequest reads a whole request frame from r. Arguments are split on
// single spaces, so arguments containing spaces do not survive the trip;
// the worker sees the same limitation.
func ParseRequest(r io.Reader) (Request, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, fmt.Errorf("request header not terminated")
		}
		return Request{}, err
	}
	line = strings.TrimSuffix(line, "\n")

	token, rest, ok := strings.Cut(line, " ")
	if !ok || token == "" {
		return Request{}, fmt.Errorf("malformed request header %q", line)
	}
	// The root may contain spaces; the first " exec " ends it
	sep := " " + execKeyword + " "
	idx := strings.Index(rest, sep)
	if idx < 0 {
		return Request{}, fmt.Errorf("request header missing %q keyword", execKeyword)
	}
	root := rest[:idx]
	argLine := rest[idx+len(sep):]

	var args []string
	if argLine != "" {
		args = strings.Split(argLine, " ")
	}

	payload, err := io.ReadAll(br)
	if err != nil {
		return Request{}, err
	}

	return Request{Token: token, Root: root, Args: args, Payload: payload}, nil
}

// WantsStdin reports whether args ask the tool to lint content from stdin.
func WantsStdin(args []string) bool {
	return slices.ContainsFunc(args, func(a string) bool {
		return slices.Contains(stdinFlags, a)
	})
}

// ResolvePayload picks the request payload: STDIN_CONTENT when it is set
// (even to the empty string), else all of stdin when a stdin flag is among
// args, else nothing.
func ResolvePayload(lookupEnv func(string) (string, bool), args []string, stdin io.Reader) ([]byte, error) {
	if content, ok := lookupEnv(EnvStdinContent); ok {
		return []byte(content), nil
	}
	if !WantsStdin(args) || stdin == nil {
		return nil, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}
