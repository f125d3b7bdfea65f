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
	"net"

	"github.com/jigsaw-operations/socks5d/transport"
)

// AuthenticateFunc validates username/password credentials presented
// during RFC 1929 sub-negotiation. Returning a non-nil error rejects the
// credentials. client is the already-connected client's remote address.
type AuthenticateFunc func(ctx context.Context, username, password string, client net.Addr) error

// ConnectionFilterFunc is consulted after a ConnectRequest is parsed, and
// before the outbound connector is invoked. Returning a non-nil error
// rejects the request with CONNECTION_NOT_ALLOWED.
type ConnectionFilterFunc func(ctx context.Context, destination string, client net.Addr) error

// options holds the configuration bundle for a Server. It is immutable
// once the Server is constructed.
type options struct {
	authenticate     AuthenticateFunc
	connectionFilter ConnectionFilterFunc
	connector        transport.StreamDialer
	events           EventSink
}

// Option configures a Server constructed by NewServer.
type Option func(*options)

// WithAuthenticate requires RFC 1929 username/password authentication and
// validates credentials with fn. Without this option the server only
// offers NO_AUTH.
func WithAuthenticate(fn AuthenticateFunc) Option {
	return func(o *options) { o.authenticate = fn }
}

// WithConnectionFilter installs a per-request filter invoked after the
// ConnectRequest has been parsed and before the outbound connector dials.
func WithConnectionFilter(fn ConnectionFilterFunc) Option {
	return func(o *options) { o.connectionFilter = fn }
}

// WithOutboundConnector overrides the default direct-TCP connector. Any
// [transport.StreamDialer] works, including the SOCKS5 client dialer in
// this package, which makes a Server chain to an upstream proxy instead
// of dialing directly.
func WithOutboundConnector(d transport.StreamDialer) Option {
	return func(o *options) { o.connector = d }
}

// WithEventSink installs a sink that receives the Server's lifecycle
// events. Without this option events are discarded.
func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.events = sink }
}

func newOptions(opts ...Option) *options {
	o := &options{
		connector: &transport.HappyEyeballsStreamDialer{},
		events:    discardSink{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
