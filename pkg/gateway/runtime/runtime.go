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

// Package runtime implements the Container Provisioner (spec §4.1): it owns
// the calls the gateway makes against whatever engine runs sandboxes —
// image inspect/pull, container inspect/create/start, and exec
// create/attach/resize/inspect — behind one interface, so no other package
// under pkg/ imports a container SDK. cmd/devbox-gateway/app only dials the
// engine client it passes in.
package runtime

import (
	"context"
	"fmt"
	"regexp"
)

// Engine names a supported container runtime backend.
type Engine string

const (
	EngineDocker     Engine = "docker"
	EngineContainerd Engine = "containerd"
)

const (
	// SandboxImage is the one fixed image every sandbox container runs.
	SandboxImage = "ubuntu:20.04"
	// SandboxPlatform pins the image architecture so a mixed-arch fleet
	// never resolves a foreign-arch manifest for dev-env-* containers.
	SandboxPlatform = "linux/amd64"

	// DefaultCPUs is the per-sandbox CPU share applied when Config.Cpus is unset.
	DefaultCPUs = 1
	// DefaultMemoryMB is the per-sandbox memory ceiling applied when Config.MemoryMB is unset.
	DefaultMemoryMB = 512
)

// Config configures the runtime collaborator.
type Config struct {
	Engine           Engine `toml:"engine"`
	Endpoint         string `toml:"endpoint"`
	DockerAPIVersion string `toml:"docker_api_version"`
	ContainerdNS     string `toml:"containerd_namespace"`
	ImageHubAuth     string `toml:"image_hub_auth"`
	Cpus             int    `toml:"cpus"`
	MemoryMB         int    `toml:"memory_mb"`
}

var projectNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeName strips everything but alphanumerics, '-' and '_' from email
// so it is safe to use in a container name (spec §6: container name is
// "dev-env-<sanitized-email>").
func SanitizeName(email string) string {
	return projectNameSanitizer.ReplaceAllString(email, "")
}

// ContainerName returns the fixed per-user sandbox container name.
func ContainerName(email string) string {
	return "dev-env-" + SanitizeName(email)
}

// ExecHandle is a single command execution inside a sandbox, used by the
// Shell-RPC layer for its one-shot readFile/writeFile commands. The PTY
// Manager's interactive shells do not go through it: they run
// `docker exec -it` as a local child process.
type ExecHandle interface {
	// Stdin is the writer end of the exec's stdin.
	Stdin() (interface {
		Write([]byte) (int, error)
	}, error)
	// Reader yields the exec's output as one plain byte stream: stdout for
	// a tty exec, stdout and stderr combined for a non-tty exec. Backends
	// remove any engine framing, so callers never demultiplex.
	Reader() interface {
		Read([]byte) (int, error)
	}
	// Resize changes the pty window size of an interactive exec.
	Resize(ctx context.Context, rows, cols int) error
	// Wait blocks until the exec's process has exited and returns its
	// exit code.
	Wait(ctx context.Context) (int, error)
	// Close releases the exec's streams without waiting for exit.
	Close() error
}

// Progress reports one human-readable step of a long-running provisioning
// call back to its caller, so the Session Orchestrator can forward it to the
// browser as a terminal_info event (spec §4.1/§8: image-pull and
// container-create progress is reported as terminal_info). A nil Progress
// is always safe to call through report below — most callers (the boot-time
// PullImage call in cmd/devbox-gateway/app/server.go) have nowhere to send it.
type Progress func(msg string)

// report calls p(msg) if p is non-nil.
func report(p Progress, msg string) {
	if p != nil {
		p(msg)
	}
}

// Runtime is the Container Provisioner's collaborator interface.
type Runtime interface {
	// EnsureContainer resolves the running container id for email,
	// starting a stopped one by id or creating a fresh one when
	// existingID is empty or no longer resolves (spec §4.1 steps 1-5).
	// progress receives one message per notable step; pass nil to ignore.
	EnsureContainer(ctx context.Context, email, existingID string, progress Progress) (containerID string, err error)
	// PullImage pulls SandboxImage if it is not already present locally.
	PullImage(ctx context.Context) error
	// Exec starts a command inside containerID, attached with a pty when
	// tty is true (the Shell-RPC layer's one-shot commands pass false).
	Exec(ctx context.Context, containerID string, cmd []string, tty bool) (ExecHandle, error)
}

// ErrNoSuchContainer is returned by EnsureContainer's probing step when
// existingID no longer resolves to a live container — the caller (the
// Container Provisioner) treats this as "fall through to create", per
// invariant 4 (a stale container id must never wedge session establishment).
var ErrNoSuchContainer = fmt.Errorf("runtime: no such container")
