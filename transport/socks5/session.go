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
	"io"
	"net"

	"github.com/jigsaw-operations/socks5d/transport"
)

// session drives one accepted connection through
// Greeting -> [Authenticating] -> Request -> Relaying | Closed.
//
// A session owns its inbound connection exclusively; no state here is
// shared with other sessions, so a Server may run many sessions
// concurrently without additional locking beyond its own registry.
type session struct {
	conn   transport.StreamConn
	client net.Addr
	opts   *options

	// replyCode and destination describe the single ConnectReply (or
	// earlier short failure) this session produced, for the final
	// OnProxyEnd event. destination is empty until a ConnectRequest has
	// been parsed.
	replyCode   byte
	destination string
}

// serve runs the session to completion and closes the connection. It
// never panics out to the caller: a panic is recovered, reported via
// OnProxyError, and the connection is closed. No GENERAL_FAILURE reply is
// written for a recovered panic, whether or not a reply has gone out yet.
func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()
	defer func() {
		if s.destination != "" || s.replyCode != 0 {
			s.opts.events.OnProxyEnd(s.client, s.replyCode, s.destination)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.opts.events.OnProxyError(s.client, errFromPanic(r))
		}
	}()

	s.opts.events.OnHandshake(s.client)

	method, ok := s.negotiateMethod()
	if !ok {
		return
	}

	if method == authMethodUserPass {
		if !s.authenticate(ctx) {
			return
		}
	}

	s.handleRequest(ctx)
}

func errFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &decodeError{kind: errShortBuffer, msg: "session: internal panic"}
}

// negotiateMethod reads and replies to the Greeting frame, returning the
// negotiated method. ok is false if the session is already terminated
// (no acceptable method, malformed frame, or version mismatch).
func (s *session) negotiateMethod() (method byte, ok bool) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return 0, false
	}
	nmethods := int(header[1])
	rest := make([]byte, nmethods)
	if nmethods > 0 {
		if _, err := io.ReadFull(s.conn, rest); err != nil {
			return 0, false
		}
	}
	full := append(header, rest...)

	greeting, _, err := decodeGreeting(full)
	if err != nil {
		s.conn.Write(encodeShortReply(byte(ErrGeneralServerFailure)))
		s.replyCode = byte(ErrGeneralServerFailure)
		return 0, false
	}

	offered := make(map[byte]bool, len(greeting.methods))
	for _, m := range greeting.methods {
		offered[m] = true
	}

	var selected byte
	if s.opts.authenticate != nil {
		if offered[authMethodUserPass] {
			selected = authMethodUserPass
		} else {
			selected = methodNoAcceptable
		}
	} else {
		if offered[authMethodNoAuth] {
			selected = authMethodNoAuth
		} else {
			selected = methodNoAcceptable
		}
	}

	if _, err := s.conn.Write(encodeMethodReply(selected)); err != nil {
		return 0, false
	}
	if selected == methodNoAcceptable {
		return 0, false
	}
	return selected, true
}

// authenticate reads and replies to the AuthRequest frame, invoking the
// configured AuthenticateFunc. ok is false if the session is terminated.
func (s *session) authenticate(ctx context.Context) bool {
	header := make([]byte, 2)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return false
	}
	ulen := int(header[1])
	uname := make([]byte, ulen)
	if ulen > 0 {
		if _, err := io.ReadFull(s.conn, uname); err != nil {
			return false
		}
	}
	plenBuf := make([]byte, 1)
	if _, err := io.ReadFull(s.conn, plenBuf); err != nil {
		return false
	}
	plen := int(plenBuf[0])
	passwd := make([]byte, plen)
	if plen > 0 {
		if _, err := io.ReadFull(s.conn, passwd); err != nil {
			return false
		}
	}

	full := append(append(append(header, uname...), plenBuf...), passwd...)
	req, _, err := decodeAuthRequest(full)
	if err != nil {
		s.conn.Write(encodeAuthReply(authStatusFailure))
		s.replyCode = byte(ErrGeneralServerFailure)
		return false
	}

	username := string(req.username)
	if err := s.opts.authenticate(ctx, username, string(req.password), s.client); err != nil {
		s.conn.Write(encodeAuthReply(authStatusFailure))
		s.opts.events.OnAuthenticateError(s.client, username, err)
		return false
	}

	if _, err := s.conn.Write(encodeAuthReply(authStatusSuccess)); err != nil {
		return false
	}
	s.opts.events.OnAuthenticate(s.client, username)
	return true
}

// handleRequest reads the ConnectRequest frame, runs the connection
// filter, dials out, and on success hands off to the relay.
func (s *session) handleRequest(ctx context.Context) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return
	}
	if header[0] != socks5Version {
		s.conn.Write(encodeShortReply(byte(ErrGeneralServerFailure)))
		s.replyCode = byte(ErrGeneralServerFailure)
		return
	}

	atyp := header[3]
	rest, err := s.readRequestTail(atyp)
	if err == errUnsupportedAtyp {
		s.sendUnsupportedAddressTypeReply(atyp)
		s.replyCode = byte(ErrAddressTypeNotSupported)
		return
	}
	if err != nil {
		return
	}

	full := append(header, rest...)
	req, _, err := decodeConnectRequest(full)
	if err != nil {
		if de, ok := err.(*decodeError); ok && de.kind == errBadAtyp {
			s.sendUnsupportedAddressTypeReply(atyp)
			s.replyCode = byte(ErrAddressTypeNotSupported)
			return
		}
		s.conn.Write(encodeShortReply(byte(ErrGeneralServerFailure)))
		s.replyCode = byte(ErrGeneralServerFailure)
		return
	}

	if req.reserved != 0x00 {
		s.conn.Write(encodeShortReply(byte(ErrGeneralServerFailure)))
		s.replyCode = byte(ErrGeneralServerFailure)
		return
	}

	s.destination = destinationString(req.dst)

	if req.cmd != CmdConnect {
		s.sendConnectReply(byte(ErrCommandNotSupported), req)
		s.replyCode = byte(ErrCommandNotSupported)
		return
	}

	if s.opts.connectionFilter != nil {
		err := s.opts.connectionFilter(ctx, s.destination, s.client)
		s.opts.events.OnConnectionFilter(s.client, s.destination, err)
		if err != nil {
			s.sendConnectReply(byte(ErrConnectionNotAllowedByRuleset), req)
			s.replyCode = byte(ErrConnectionNotAllowedByRuleset)
			return
		}
	}

	remote, err := s.opts.connector.DialStream(ctx, s.destination)
	if err != nil {
		rep := replyCodeForDialError(err)
		s.sendConnectReply(rep, req)
		s.replyCode = rep
		s.opts.events.OnProxyError(s.client, err)
		return
	}
	defer remote.Close()

	s.sendConnectReply(replySucceeded, req)
	s.replyCode = replySucceeded
	s.opts.events.OnProxyConnect(s.client, s.destination)

	s.relayTo(remote)
}

// errUnsupportedAtyp signals that the request's atyp isn't one this
// server recognizes, distinct from a connection-level read failure.
var errUnsupportedAtyp = errors.New("socks5: unsupported address type")

// readRequestTail reads whatever remains of the ConnectRequest frame
// beyond the 4-byte header, based on atyp.
func (s *session) readRequestTail(atyp byte) (tail []byte, err error) {
	switch atyp {
	case addrTypeIPv4:
		buf := make([]byte, net.IPv4len+2)
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case addrTypeIPv6:
		buf := make([]byte, net.IPv6len+2)
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case addrTypeDomainName:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(s.conn, lenBuf); err != nil {
			return nil, err
		}
		rest := make([]byte, int(lenBuf[0])+2)
		if _, err := io.ReadFull(s.conn, rest); err != nil {
			return nil, err
		}
		return append(lenBuf, rest...), nil
	default:
		return nil, errUnsupportedAtyp
	}
}

// sendConnectReply writes a full ConnectReply whose BND.ADDR/BND.PORT are
// zero-valued: an all-zero IPv6 address if the request was IPv6, otherwise
// an all-zero IPv4 address, and port 0. The request's destination is not
// echoed.
func (s *session) sendConnectReply(replyCode byte, req *connectRequestMessage) {
	atyp, addr := zeroValuedReplyAddr(req.atyp)
	s.conn.Write(encodeConnectReply(replyCode, atyp, addr, 0))
}

// sendUnsupportedAddressTypeReply writes a full ConnectReply for an atyp
// the server doesn't recognize. atyp has already been read off the wire at
// this point (it's ConnectRequest.header[3]), so spec.md §4.1's bare
// 2-byte short reply doesn't apply here — only failures before atyp has
// been parsed get that form.
func (s *session) sendUnsupportedAddressTypeReply(requestAtyp byte) {
	atyp, addr := zeroValuedReplyAddr(requestAtyp)
	s.conn.Write(encodeConnectReply(byte(ErrAddressTypeNotSupported), atyp, addr, 0))
}

// relayTo instruments both directions with the proxyData event and
// splices client<->remote until both directions have finished.
func (s *session) relayTo(remote transport.StreamConn) {
	instrumentedClient := transport.WrapConn(s.conn, &countingReader{
		Reader: s.conn,
		onRead: func(n int) { s.opts.events.OnProxyData(s.client, true, n) },
	}, s.conn)
	instrumentedRemote := transport.WrapConn(remote, &countingReader{
		Reader: remote,
		onRead: func(n int) { s.opts.events.OnProxyData(s.client, false, n) },
	}, remote)

	relay(instrumentedClient, instrumentedRemote)
	s.opts.events.OnProxyDisconnect(s.client, s.destination, nil)
}
