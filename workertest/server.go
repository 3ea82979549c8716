// Package workertest provides an in-process stand-in for the rubocop-daemon
// worker. It speaks the worker's side of the protocol: it announces itself
// through the session's token and port files, serves one request per
// connection and reports the exit status through the status file.
package workertest

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/rubocop-daemon/wrapper/client"
	"github.com/rubocop-daemon/wrapper/logger"
	"github.com/rubocop-daemon/wrapper/session"
)

// Response is what the fake worker sends back for a request.
type Response struct {
	Body        []byte
	Status      int
	SkipStatus  bool // Close the connection without writing the status file
	StatusAfter bool // Write the status file after the body instead of before
}

// Handler computes the response for an authenticated request.
type Handler func(req client.Request) Response

// Server is a fake worker bound to one session.
type Server struct {
	sess     *session.Session
	token    string
	listener net.Listener
	handler  Handler
	log      *slog.Logger

	mu       sync.Mutex
	requests []client.Request
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithToken fixes the shared secret instead of generating one.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// New listens on 127.0.0.1 and prepares a fake worker for sess. Nothing is
// written to the session until Announce is called.
func New(sess *session.Session, handler Handler, opts ...Option) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		sess:     sess,
		token:    uuid.NewString(),
		listener: listener,
		handler:  handler,
		log:      logger.WithComponent("workertest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the accept loop.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.run()
}

// Announce writes the token and port files the way the worker does at
// startup.
func (s *Server) Announce() error {
	if err := os.MkdirAll(s.sess.Dir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(s.sess.TokenPath, []byte(s.token), 0644); err != nil {
		return err
	}
	return os.WriteFile(s.sess.PortPath, []byte(strconv.Itoa(s.Port())), 0644)
}

// Token returns the shared secret.
func (s *Server) Token() string {
	return s.token
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Requests returns the authenticated requests served so far.
func (s *Server) Requests() []client.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]client.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) run() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Error("accept failed", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	req, err := client.ParseRequest(conn)
	if err != nil {
		s.log.Debug("bad request", "error", err)
		return
	}
	if req.Token != s.token {
		fmt.Fprintln(conn, "token is not valid")
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	resp := s.handler(req)
	if !resp.SkipStatus && !resp.StatusAfter {
		s.writeStatus(resp.Status)
	}
	if _, err := conn.Write(resp.Body); err != nil {
		s.log.Debug("write failed", "error", err)
	}
	if !resp.SkipStatus && resp.StatusAfter {
		s.writeStatus(resp.Status)
	}
}

func (s *Server) writeStatus(status int) {
	if err := os.WriteFile(s.sess.StatusPath, []byte(strconv.Itoa(status)), 0644); err != nil {
		s.log.Error("failed to write status", "error", err)
	}
}

// Close stops accepting connections and waits for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}
