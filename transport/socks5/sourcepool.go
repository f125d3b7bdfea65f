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
	"sync/atomic"
	"time"

	"github.com/jigsaw-operations/socks5d/transport"
)

// SourcePoolConnector is a [transport.StreamDialer] that dials outbound
// TCP connections round-robin across a fixed pool of local source
// addresses, so a Server spreads outbound connections across several
// bindable IPs (e.g. a routed IPv6 /64) instead of always using the
// machine's default route.
//
// This plays the role of the fixed-outbound-IPv6-per-listener dialer
// used elsewhere in this package's corpus, generalized from "one IP
// per listener" to "a pool shared across all of a Server's sessions."
type SourcePoolConnector struct {
	sources []net.IP
	next    atomic.Uint64
}

// NewSourcePoolConnector builds a connector that rotates outbound dials
// across sources. At least one address is required.
func NewSourcePoolConnector(sources []net.IP) (*SourcePoolConnector, error) {
	if len(sources) == 0 {
		return nil, errors.New("socks5: source pool requires at least one address")
	}
	pool := make([]net.IP, len(sources))
	copy(pool, sources)
	return &SourcePoolConnector{sources: pool}, nil
}

// DialStream implements [transport.StreamDialer]. It connects to addr over
// TCP using the next source address in the pool, applying the
// TCP_NODELAY/keepalive tuning of setSocketOptions (a no-op on non-Linux
// platforms).
func (c *SourcePoolConnector) DialStream(ctx context.Context, addr string) (transport.StreamConn, error) {
	idx := c.next.Add(1) - 1
	source := c.sources[idx%uint64(len(c.sources))]

	dialer := net.Dialer{
		LocalAddr: &net.TCPAddr{IP: source},
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   setSocketOptions,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("socks5: source pool dial %s from %s: %w", addr, source, err)
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("socks5: source pool dial %s: unexpected conn type %T", addr, conn)
	}
	return tc, nil
}

var _ transport.StreamDialer = (*SourcePoolConnector)(nil)
