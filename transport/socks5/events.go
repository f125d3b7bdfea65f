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

import "net"

// EventSink receives best-effort, fire-and-forget lifecycle notifications
// from a Server. Implementations must not block: a slow sink will slow
// down the session that produced the event. A Server built by NewServer
// without WithEventSink uses a discardSink that drops every event.
//
// This plays the role the teacher's event-emitter based examples would
// fill with a runtime event bus; here it's a plain Go interface so the
// session driver never does dynamic dispatch over event-name strings.
type EventSink interface {
	OnHandshake(client net.Addr)
	OnAuthenticate(client net.Addr, username string)
	OnAuthenticateError(client net.Addr, username string, err error)
	OnConnectionFilter(client net.Addr, destination string, err error)
	OnProxyConnect(client net.Addr, destination string)
	OnProxyData(client net.Addr, fromClient bool, n int)
	OnProxyDisconnect(client net.Addr, destination string, err error)
	OnProxyError(client net.Addr, err error)
	OnProxyEnd(client net.Addr, replyCode byte, destination string)
}

// discardSink implements EventSink by doing nothing. It is the default
// sink for a Server that isn't configured with WithEventSink.
type discardSink struct{}

func (discardSink) OnHandshake(net.Addr)                              {}
func (discardSink) OnAuthenticate(net.Addr, string)                   {}
func (discardSink) OnAuthenticateError(net.Addr, string, error)       {}
func (discardSink) OnConnectionFilter(net.Addr, string, error)        {}
func (discardSink) OnProxyConnect(net.Addr, string)                   {}
func (discardSink) OnProxyData(net.Addr, bool, int)                   {}
func (discardSink) OnProxyDisconnect(net.Addr, string, error)         {}
func (discardSink) OnProxyError(net.Addr, error)                      {}
func (discardSink) OnProxyEnd(net.Addr, byte, string)                 {}

var _ EventSink = discardSink{}
