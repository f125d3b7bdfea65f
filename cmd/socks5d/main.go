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

// Command socks5d runs a standalone SOCKS5 proxy server.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/jigsaw-operations/socks5d/transport"
	"github.com/jigsaw-operations/socks5d/transport/socks5"
	"github.com/jigsaw-operations/socks5d/transport/split"
	tlsrecordfrag "github.com/jigsaw-operations/socks5d/transport/tls-record-frag"
)

func makeOutboundConnector(transportConfig string, sourceAddrs string) (transport.StreamDialer, error) {
	if sourceAddrs != "" {
		var pool []net.IP
		for _, s := range strings.Split(sourceAddrs, ",") {
			ip := net.ParseIP(strings.TrimSpace(s))
			if ip == nil {
				return nil, &net.AddrError{Err: "invalid source address", Addr: s}
			}
			pool = append(pool, ip)
		}
		return socks5.NewSourcePoolConnector(pool)
	}

	if transportConfig == "" {
		return &transport.HappyEyeballsStreamDialer{}, nil
	}
	return socks5.NewStreamDialer(&transport.TCPEndpoint{Address: transportConfig})
}

// wrapObfuscation applies the --obfuscate strategy (if any) around dialer,
// splitting the first bytes an outbound connection writes so that a
// passive observer of the proxy's egress link doesn't see a single
// recognizable prefix (e.g. a TLS ClientHello) in one packet.
func wrapObfuscation(dialer transport.StreamDialer, obfuscate string) (transport.StreamDialer, error) {
	if obfuscate == "" {
		return dialer, nil
	}
	strategy, rawN, found := strings.Cut(obfuscate, ":")
	if !found {
		return nil, &net.AddrError{Err: "--obfuscate requires a strategy:byteCount value", Addr: obfuscate}
	}
	n, err := strconv.Atoi(rawN)
	if err != nil {
		return nil, &net.AddrError{Err: "--obfuscate byte count must be an integer", Addr: obfuscate}
	}
	switch strategy {
	case "split":
		return split.NewStreamDialer(dialer, int64(n))
	case "tls-record-frag":
		return tlsrecordfrag.NewStreamDialer(dialer, int32(n))
	default:
		return nil, &net.AddrError{Err: "unknown --obfuscate strategy", Addr: strategy}
	}
}

func main() {
	addrFlag := flag.String("addr", ":1080", "Address to listen on")
	upstreamFlag := flag.String("upstream", "", "Chain outbound connections through this SOCKS5 proxy (host:port); empty dials directly")
	sourcesFlag := flag.String("source-addrs", "", "Comma-separated local source addresses to round-robin outbound dials across; empty uses the default route")
	credentialsFlag := flag.String("credentials", "", "Path to a YAML credentials file; empty allows unauthenticated access")
	obfuscateFlag := flag.String("obfuscate", "", "Fragment outbound writes as strategy:byteCount (split or tls-record-frag); empty disables")
	flag.Parse()

	connector, err := makeOutboundConnector(*upstreamFlag, *sourcesFlag)
	if err != nil {
		log.Fatalf("socks5d: could not create outbound connector: %v", err)
	}
	connector, err = wrapObfuscation(connector, *obfuscateFlag)
	if err != nil {
		log.Fatalf("socks5d: could not apply --obfuscate: %v", err)
	}

	opts := []socks5.Option{
		socks5.WithOutboundConnector(connector),
		socks5.WithEventSink(&logSink{}),
	}
	if *credentialsFlag != "" {
		store, err := socks5.LoadCredentialsFile(*credentialsFlag)
		if err != nil {
			log.Fatalf("socks5d: could not load credentials: %v", err)
		}
		opts = append(opts, socks5.WithAuthenticate(store.Authenticate))
	}

	server := socks5.NewServer(opts...)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(*addrFlag)
	}()

	// Listen binds before entering its Accept loop; give it a moment to
	// fail fast on a bad address before announcing readiness.
	select {
	case err := <-listenErr:
		log.Fatalf("socks5d: server stopped: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	log.Printf("socks5d: listening on %s", server.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	log.Println("socks5d: shutting down")
	if err := server.Close(); err != nil {
		log.Printf("socks5d: error closing server: %v", err)
	}
	<-listenErr
}

// logSink logs every server event to the standard logger, useful for
// running socks5d interactively.
type logSink struct{}

func (logSink) OnHandshake(client net.Addr) {
	log.Printf("handshake client=%s", client)
}
func (logSink) OnAuthenticate(client net.Addr, username string) {
	log.Printf("authenticate client=%s username=%s", client, username)
}
func (logSink) OnAuthenticateError(client net.Addr, username string, err error) {
	log.Printf("authenticate-error client=%s username=%s err=%v", client, username, err)
}
func (logSink) OnConnectionFilter(client net.Addr, destination string, err error) {
	if err != nil {
		log.Printf("connection-filter-reject client=%s destination=%s err=%v", client, destination, err)
	}
}
func (logSink) OnProxyConnect(client net.Addr, destination string) {
	log.Printf("connect client=%s destination=%s", client, destination)
}
func (logSink) OnProxyData(net.Addr, bool, int) {}
func (logSink) OnProxyDisconnect(client net.Addr, destination string, err error) {
	log.Printf("disconnect client=%s destination=%s err=%v", client, destination, err)
}
func (logSink) OnProxyError(client net.Addr, err error) {
	log.Printf("proxy-error client=%s err=%v", client, err)
}
func (logSink) OnProxyEnd(client net.Addr, replyCode byte, destination string) {
	log.Printf("end client=%s reply=0x%02x destination=%s", client, replyCode, destination)
}

var _ socks5.EventSink = (*logSink)(nil)
