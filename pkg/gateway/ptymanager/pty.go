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

// Package ptymanager implements the PTY Manager (spec §4.2): allocate a pty
// pair, put the slave in raw mode, spawn the container's shell attached to
// it, and offer Resize/Done/Close around the pair's lifetime.
package ptymanager

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"

	"devbox-gateway/pkg/common/logutil"
)

var logger = logutil.GetLogger("gateway-pty")

// PtyBackend abstracts pty allocation so a non-Linux host (spec §9 design
// note on portability) could supply a different implementation; the
// default backend below is Linux-only (creack/pty plus direct termios
// ioctls).
type PtyBackend interface {
	Open() (master, slave *os.File, err error)
	Setsize(master *os.File, rows, cols int) error
}

type linuxPtyBackend struct{}

func (linuxPtyBackend) Open() (*os.File, *os.File, error) {
	return pty.Open()
}

func (linuxPtyBackend) Setsize(master *os.File, rows, cols int) error {
	return pty.Setsize(master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// DefaultBackend is the Linux pty backend used by the gateway.
var DefaultBackend PtyBackend = linuxPtyBackend{}

// Shell is a live PTY pair with a shell process attached to its slave.
type Shell struct {
	backend PtyBackend
	cmd     *exec.Cmd
	master  *os.File
	slave   *os.File

	exitCh chan struct{}
	exited bool
}

// AttachShell allocates a pty, puts it in raw mode, and execs argv0/args
// with the pty slave wired into its stdin/stdout/stderr (spec §4.2 steps
// 1-5), grounded on the teacher's nsenter setupConsole pattern: dup the
// slave into the three standard streams, add it to ExtraFiles so it is not
// closed early, and start the child in its own session as the controlling
// terminal.
func AttachShell(name string, args []string, env []string, backend PtyBackend) (*Shell, error) {
	if backend == nil {
		backend = DefaultBackend
	}

	master, slave, err := backend.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}

	if err := setRawMode(slave); err != nil {
		master.Close()
		slave.Close()

		return nil, fmt.Errorf("set raw mode: %w", err)
	}

	// Initial window size: 24 rows by 80 columns.
	if err := backend.Setsize(master, 24, 80); err != nil {
		master.Close()
		slave.Close()

		return nil, fmt.Errorf("set initial window size: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Env = env
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.ExtraFiles = append(cmd.ExtraFiles, slave)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()

		return nil, fmt.Errorf("start shell: %w", err)
	}

	// The child owns the slave fd now; the gateway only ever talks to it
	// through the master.
	slave.Close()

	s := &Shell{backend: backend, cmd: cmd, master: master, slave: slave, exitCh: make(chan struct{})}

	go s.reap()

	return s, nil
}

func (s *Shell) reap() {
	err := s.cmd.Wait()
	if err != nil {
		logger.Debugf("shell pid %d exited: %v", s.cmd.Process.Pid, err)
	}

	close(s.exitCh)
}

// Master returns the pty master end the Output Pump reads from and the
// Input Router writes to.
func (s *Shell) Master() *os.File { return s.master }

// PID is the shell process's PID, used by the Teardown Controller to kill
// its process group.
func (s *Shell) PID() int { return s.cmd.Process.Pid }

// Resize applies a new window size to the pty.
func (s *Shell) Resize(rows, cols int) error {
	return s.backend.Setsize(s.master, rows, cols)
}

// Done is closed once the shell process has exited.
func (s *Shell) Done() <-chan struct{} { return s.exitCh }

// Close closes the pty master. Safe to call after the shell has already
// exited; does not itself kill the process — that is the Teardown
// Controller's job via procutil.KillProcessGroup.
func (s *Shell) Close() error {
	return s.master.Close()
}
