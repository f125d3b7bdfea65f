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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSourcePoolConnector_RequiresAtLeastOneAddress(t *testing.T) {
	_, err := NewSourcePoolConnector(nil)
	require.Error(t, err)
}

func TestSourcePoolConnector_DialStream(t *testing.T) {
	echoAddr := startEchoServer(t)

	connector, err := NewSourcePoolConnector([]net.IP{net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	conn, err := connector.DialStream(context.Background(), echoAddr)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("source pool round trip")
	_, err = conn.Write(payload)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = conn.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSourcePoolConnector_RotatesAcrossSources(t *testing.T) {
	connector, err := NewSourcePoolConnector([]net.IP{
		net.ParseIP("127.0.0.1"),
		net.ParseIP("127.0.0.2"),
		net.ParseIP("127.0.0.3"),
	})
	require.NoError(t, err)

	first := connector.next.Load()
	_ = first
	// DialStream advances the round-robin counter even when the dial
	// itself fails, so three failed dials visit all three sources once.
	for i := 0; i < 3; i++ {
		_, _ = connector.DialStream(context.Background(), "127.0.0.1:1")
	}
	require.Equal(t, uint64(3), connector.next.Load())
}
