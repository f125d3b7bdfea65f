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
	"encoding/binary"
	"fmt"
	"net"
)

// This file holds the server-side wire codec: pure decode/encode functions
// over byte buffers, no I/O. They complement the address encoding already
// used by the client dialer in socks5.go (appendSOCKS5Address, readAddr).

const (
	socks5Version              = 0x05
	authSubnegotiationVersion  = 0x01
	authMethodGSSAPI           = 0x01
	methodNoAcceptable         = 0xff
	authStatusSuccess          = 0x00
	authStatusFailure          = 0xff
	replySucceeded             = 0x00
)

// decodeErrorKind classifies why a decode failed, per spec.
type decodeErrorKind int

const (
	errShortBuffer decodeErrorKind = iota
	errBadVersion
	errBadAtyp
	errBadLength
)

// decodeError is returned by every decodeXxx function below. It is
// intentionally a typed, comparable error (like ReplyCode) rather than a
// sentinel string, so callers can branch on decodeError.kind.
type decodeError struct {
	kind decodeErrorKind
	msg  string
}

func (e *decodeError) Error() string { return e.msg }

func newDecodeError(kind decodeErrorKind, format string, args ...any) *decodeError {
	return &decodeError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// greetingMessage is the C->S method negotiation frame.
type greetingMessage struct {
	methods []byte
}

// decodeGreeting decodes the method negotiation frame. It requires
// len(buf) >= 2+buf[1] and returns the number of bytes consumed.
func decodeGreeting(buf []byte) (*greetingMessage, int, error) {
	if len(buf) < 2 {
		return nil, 0, newDecodeError(errShortBuffer, "greeting: need at least 2 bytes, got %d", len(buf))
	}
	if buf[0] != socks5Version {
		return nil, 0, newDecodeError(errBadVersion, "greeting: unsupported version 0x%02x", buf[0])
	}
	nmethods := int(buf[1])
	total := 2 + nmethods
	if len(buf) < total {
		return nil, 0, newDecodeError(errShortBuffer, "greeting: need %d bytes for %d methods, got %d", total, nmethods, len(buf))
	}
	methods := make([]byte, nmethods)
	copy(methods, buf[2:total])
	return &greetingMessage{methods: methods}, total, nil
}

// authRequestMessage is the RFC 1929 username/password sub-negotiation frame.
type authRequestMessage struct {
	username []byte
	password []byte
}

// decodeAuthRequest decodes a username/password AuthRequest frame.
func decodeAuthRequest(buf []byte) (*authRequestMessage, int, error) {
	if len(buf) < 2 {
		return nil, 0, newDecodeError(errShortBuffer, "auth request: need at least 2 bytes, got %d", len(buf))
	}
	if buf[0] != authSubnegotiationVersion {
		return nil, 0, newDecodeError(errBadVersion, "auth request: unsupported sub-negotiation version 0x%02x", buf[0])
	}
	ulen := int(buf[1])
	passLenOffset := 2 + ulen
	if len(buf) < passLenOffset+1 {
		return nil, 0, newDecodeError(errShortBuffer, "auth request: need %d bytes for username, got %d", passLenOffset+1, len(buf))
	}
	plen := int(buf[passLenOffset])
	total := passLenOffset + 1 + plen
	if len(buf) < total {
		return nil, 0, newDecodeError(errShortBuffer, "auth request: need %d bytes for password, got %d", total, len(buf))
	}
	username := make([]byte, ulen)
	copy(username, buf[2:2+ulen])
	password := make([]byte, plen)
	copy(password, buf[passLenOffset+1:total])
	return &authRequestMessage{username: username, password: password}, total, nil
}

// connectRequestMessage is the C->S request frame (CONNECT/BIND/UDP_ASSOCIATE).
type connectRequestMessage struct {
	cmd      byte
	reserved byte
	atyp     byte
	dst      *address
}

// decodeConnectRequest decodes a ConnectRequest frame. The required length
// depends on atyp: 4+2 for IPv4, 1+L+2 for a domain name, 16+2 for IPv6.
func decodeConnectRequest(buf []byte) (*connectRequestMessage, int, error) {
	if len(buf) < 4 {
		return nil, 0, newDecodeError(errShortBuffer, "connect request: need at least 4 bytes, got %d", len(buf))
	}
	if buf[0] != socks5Version {
		return nil, 0, newDecodeError(errBadVersion, "connect request: unsupported version 0x%02x", buf[0])
	}
	cmd := buf[1]
	reserved := buf[2]
	atyp := buf[3]
	dst := &address{}
	offset := 4

	switch atyp {
	case addrTypeIPv4:
		if len(buf) < offset+net.IPv4len+2 {
			return nil, 0, newDecodeError(errShortBuffer, "connect request: need %d bytes for IPv4 dst, got %d", offset+net.IPv4len+2, len(buf))
		}
		ip := make(net.IP, net.IPv4len)
		copy(ip, buf[offset:offset+net.IPv4len])
		dst.IP = ip
		offset += net.IPv4len
	case addrTypeIPv6:
		if len(buf) < offset+net.IPv6len+2 {
			return nil, 0, newDecodeError(errShortBuffer, "connect request: need %d bytes for IPv6 dst, got %d", offset+net.IPv6len+2, len(buf))
		}
		ip := make(net.IP, net.IPv6len)
		copy(ip, buf[offset:offset+net.IPv6len])
		dst.IP = ip
		offset += net.IPv6len
	case addrTypeDomainName:
		if len(buf) < offset+1 {
			return nil, 0, newDecodeError(errShortBuffer, "connect request: missing domain length byte")
		}
		l := int(buf[offset])
		offset++
		if l == 0 {
			return nil, 0, newDecodeError(errBadLength, "connect request: zero-length domain name")
		}
		if len(buf) < offset+l+2 {
			return nil, 0, newDecodeError(errShortBuffer, "connect request: need %d bytes for domain dst, got %d", offset+l+2, len(buf))
		}
		dst.Name = string(buf[offset : offset+l])
		offset += l
	default:
		return nil, 0, newDecodeError(errBadAtyp, "connect request: unsupported address type 0x%02x", atyp)
	}

	dst.Port = int(binary.BigEndian.Uint16(buf[offset : offset+2]))
	offset += 2
	return &connectRequestMessage{cmd: cmd, reserved: reserved, atyp: atyp, dst: dst}, offset, nil
}

// encodeMethodReply encodes the S->C MethodReply frame.
func encodeMethodReply(method byte) []byte {
	return []byte{socks5Version, method}
}

// encodeAuthReply encodes the S->C AuthReply frame.
func encodeAuthReply(status byte) []byte {
	return []byte{authSubnegotiationVersion, status}
}

// encodeShortReply encodes a bare 2-byte ConnectReply, acceptable for
// failures that occur before ATYP has been parsed.
func encodeShortReply(replyCode byte) []byte {
	return []byte{socks5Version, replyCode}
}

// encodeConnectReply encodes a full S->C ConnectReply frame, echoing the
// given atyp-shaped address and port as BND.ADDR/BND.PORT.
func encodeConnectReply(replyCode byte, atyp byte, addr []byte, port uint16) []byte {
	b := make([]byte, 0, 4+len(addr)+2)
	b = append(b, socks5Version, replyCode, 0x00, atyp)
	b = append(b, addr...)
	b = binary.BigEndian.AppendUint16(b, port)
	return b
}

// zeroValuedReplyAddr returns an atyp/address pair suitable for a
// ConnectReply whose BND.ADDR/BND.PORT are not meaningful (per spec, it is
// permitted for these to be zero-valued).
func zeroValuedReplyAddr(requestAtyp byte) (atyp byte, addr []byte) {
	switch requestAtyp {
	case addrTypeIPv6:
		return addrTypeIPv6, make([]byte, net.IPv6len)
	default:
		return addrTypeIPv4, make([]byte, net.IPv4len)
	}
}
