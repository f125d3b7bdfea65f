// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jigsaw-operations/socks5d/transport"
)

// Server is a SOCKS5 proxy server (RFC 1928/1929). The zero value is not
// usable; construct one with NewServer.
//
// Server binds a listener, spawns one session per accepted connection
// (each an independent goroutine with its own state, per spec.md §5), and
// publishes lifecycle events through the configured EventSink. Close ends
// the listener and every still-active session.
type Server struct {
	opts *options

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
	closed   bool
}

// NewServer creates a Server configured by opts. Call Listen to start
// accepting connections.
func NewServer(opts ...Option) *Server {
	return &Server{
		opts:     newOptions(opts...),
		sessions: make(map[*session]struct{}),
	}
}

// Listen binds to addr (host:port; an empty host binds all interfaces, a
// zero port asks the OS to assign one) and serves connections until
// Close is called or the listener's Accept fails. It blocks, so callers
// typically run it in its own goroutine.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("socks5: listen %s: %w", addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("socks5: server already closed")
	}
	s.listener = ln
	s.mu.Unlock()

	return s.acceptLoop(ln)
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		sc, ok := conn.(transport.StreamConn)
		if !ok {
			conn.Close()
			continue
		}
		go s.handle(sc)
	}
}

// Addr returns the listener's bound address. It is only meaningful after
// Listen has been called (typically used to discover an OS-assigned port
// requested with ":0").
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close ends the listener (refusing new accepts) and every registered
// session, releasing both the inbound and outbound sockets they own.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range sessions {
		sess.conn.Close()
	}
	return err
}

func (s *Server) handle(conn transport.StreamConn) {
	sess := &session{
		conn:   conn,
		client: conn.RemoteAddr(),
		opts:   s.opts,
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}()

	sess.serve(context.Background())
}
