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

import (
	"os"

	"golang.org/x/sys/unix"
)

// setRawMode clears the termios flags that would have the kernel cook the
// byte stream (translate CR, echo input, line-buffer, generate signals from
// control characters) before it reaches the pty master — the gateway wants
// every keystroke forwarded to the shell untouched, and every byte the shell
// writes forwarded to the browser untouched (spec §4.2 step 2).
func setRawMode(f *os.File) error {
	fd := int(f.Fd())

	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.ICRNL | unix.IXON | unix.ISTRIP | unix.IGNCR | unix.INLCR
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}
