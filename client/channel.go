package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
)

// closeWriter is implemented by connections that support half-close.
type closeWriter interface {
	CloseWrite() error
}

// Dial connects to the worker's advertised port. There is no read
// deadline: a worker that never answers keeps the wrapper waiting.
func Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker at %s: %w", addr, err)
	}
	return conn, nil
}

// Send writes the request frame and half-closes the send direction so
// the worker sees EOF while the connection stays open for its response.
func Send(conn net.Conn, req Request) error {
	if _, err := conn.Write(req.Encode()); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	cw, ok := conn.(closeWriter)
	if !ok {
		return fmt.Errorf("connection %T does not support half-close", conn)
	}
	if err := cw.CloseWrite(); err != nil {
		return fmt.Errorf("shutdown call failed: %w", err)
	}
	return nil
}

// Relay copies the worker's response to w until the worker closes the
// connection.
func Relay(conn io.Reader, w io.Writer) (int64, error) {
	n, err := io.Copy(w, conn)
	if err != nil {
		return n, fmt.Errorf("failed to relay worker output: %w", err)
	}
	return n, nil
}
