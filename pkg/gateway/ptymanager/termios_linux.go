// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ptymanager

import "golang.org/x/sys/unix"

// The gateway only ever runs on Linux hosts (it shells out to the Linux
// container runtime APIs), so the termios ioctl request numbers are fixed to
// the Linux ones rather than routed through a build-tag matrix per spec §9's
// portability note — PtyBackend in pty.go is the abstraction point a future
// non-Linux host would implement against.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)
