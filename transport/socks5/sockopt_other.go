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

//go:build !linux

package socks5

import "syscall"

// setSocketOptions is a no-op on non-Linux platforms; see
// sockopt_linux.go for the TCP_NODELAY/keepalive tuning it replaces.
func setSocketOptions(_, _ string, _ syscall.RawConn) error {
	return nil
}
