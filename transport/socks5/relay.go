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
	"io"
	"sync"

	"github.com/jigsaw-operations/socks5d/transport"
)

// relay splices client and remote bidirectionally until both directions
// have finished, then returns. Once a side reaches EOF, it CloseWrites the
// other side (signalling FIN/graceful shutdown) rather than hard-closing
// it, so the still-open direction can keep draining, matching the
// half-close semantics that [transport.StreamConn] exists to expose.
//
// No frame is parsed here: the relay is a transparent byte pipe once
// SUCCEEDED has been written, as required by the session state machine.
func relay(client, remote transport.StreamConn) (clientToRemote, remoteToClient int64) {
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		remoteToClient = copyAndHalfClose(client, remote)
	}()
	clientToRemote = copyAndHalfClose(remote, client)

	wg.Wait()
	return clientToRemote, remoteToClient
}

func copyAndHalfClose(dst, src transport.StreamConn) int64 {
	n, _ := io.Copy(dst, src)
	dst.CloseWrite()
	src.CloseRead()
	return n
}

// countingReader reports every Read through onRead, used to surface the
// proxyData event without otherwise touching the byte stream.
type countingReader struct {
	io.Reader
	onRead func(n int)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 && r.onRead != nil {
		r.onRead(n)
	}
	return n, err
}
