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
	"errors"
	"syscall"
)

// replyCodeForDialError maps an error from the outbound connector
// ([transport.StreamDialer]) to one of the ConnectReply codes in RFC 1928
// section 6, per the taxonomy in spec.md §7.
func replyCodeForDialError(err error) byte {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return byte(ErrConnectionRefused)
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return byte(ErrHostUnreachable)
	case errors.Is(err, syscall.EHOSTUNREACH):
		return byte(ErrHostUnreachable)
	case errors.Is(err, syscall.ENETUNREACH):
		return byte(ErrNetworkUnreachable)
	default:
		return byte(ErrNetworkUnreachable)
	}
}
