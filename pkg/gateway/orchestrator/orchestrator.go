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

// Package orchestrator implements the Session Orchestrator (spec §4.6): the
// top-level flow a load_terminal event drives — resolve the container,
// close any stale session for the email, attach a fresh Primary PTY, and
// record it in the registry. It also implements the Teardown Controller
// (spec §4.8) that the close_terminal event, a child exit, and a client
// disconnect race to invoke, with the registry's Remove as the single
// dedup point.
package orchestrator

import (
	"context"

	"devbox-gateway/pkg/common/logutil"
	"devbox-gateway/pkg/common/procutil"
	"devbox-gateway/pkg/gateway/monitor"
	"devbox-gateway/pkg/gateway/profile"
	"devbox-gateway/pkg/gateway/ptymanager"
	"devbox-gateway/pkg/gateway/registry"
	"devbox-gateway/pkg/gateway/runtime"
	"devbox-gateway/pkg/gateway/shellrpc"
	"devbox-gateway/pkg/gwerr"
)

var logger = logutil.GetLogger("gateway-orchestrator")

// shellEnv is the fixed environment every Primary/Secondary shell starts
// with, per spec §4.2.
var shellEnv = []string{
	"TERM=xterm-256color",
	"COLORTERM=truecolor",
	"LC_ALL=C.UTF-8",
}

// Orchestrator wires the Container Provisioner, PTY Manager and Session
// Registry together behind the single Establish entry point the backend's
// websocket handler calls for every load_terminal event.
type Orchestrator struct {
	reg      *registry.Registry
	rt       runtime.Runtime
	store    profile.Store
	teardown *Controller
}

// New builds an Orchestrator around its collaborators.
func New(reg *registry.Registry, rt runtime.Runtime, store profile.Store) *Orchestrator {
	return &Orchestrator{reg: reg, rt: rt, store: store, teardown: NewController(reg)}
}

// Teardown exposes the Orchestrator's Teardown Controller so the backend's
// websocket dispatch loop can invoke it for close_terminal/disconnect.
func (o *Orchestrator) Teardown() *Controller { return o.teardown }

// Registry exposes the Session Registry so the realtime dispatch loop can
// look up a live session's ContainerID/Shell without duplicating state.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Runtime exposes the Container Provisioner so the realtime dispatch loop
// can run direct (non-pty) execs for readFile/writeFile.
func (o *Orchestrator) Runtime() runtime.Runtime { return o.rt }

// Establish resolves email's sandbox container, tears down any stale live
// session first (spec §4.9's "close stale session before overwrite" design
// note — the registry never silently overwrites a live Session), and
// attaches a fresh Primary PTY shell. Idempotent per spec §4.6: calling
// Establish again for an email with no live session simply re-attaches.
// progress receives one terminal_info-shaped message per notable
// provisioning step (image pull, container create/start); pass nil to
// ignore.
func (o *Orchestrator) Establish(ctx context.Context, email, clientID string, progress runtime.Progress) (*registry.Session, error) {
	if _, ok := o.reg.Get(email); ok {
		logger.Infof("%s already has a live session, tearing it down before re-establishing", email)
		o.teardown.Run(email, "superseded by new load_terminal")
	}

	rec, _, err := o.store.Get(email)
	if err != nil {
		logger.Warnf("load profile for %s: %v", email, err)
	}

	containerID, err := o.rt.EnsureContainer(ctx, email, rec.DockerContainerID, progress)
	if err != nil {
		monitor.MetricsEstablishSessionError.WithLabelValues().Inc()

		return nil, gwerr.New("orchestrator.Establish", gwerr.KindContainerStart, err)
	}

	if err := o.store.SetContainerID(email, containerID); err != nil {
		logger.Warnf("persist container id for %s: %v", email, err)
	}

	shell, err := ptymanager.AttachShell("docker", []string{"exec", "-it", containerID, "/bin/bash"}, shellEnv, nil)
	if err != nil {
		monitor.MetricsEstablishSessionError.WithLabelValues().Inc()

		return nil, gwerr.New("orchestrator.Establish", gwerr.KindPtyAlloc, err)
	}

	sess := &registry.Session{
		Email:       email,
		ClientID:    clientID,
		ContainerID: containerID,
		Shell:       shell,
	}

	if err := o.reg.Put(sess); err != nil {
		shell.Close()
		monitor.MetricsEstablishSessionError.WithLabelValues().Inc()

		return nil, gwerr.New("orchestrator.Establish", gwerr.KindRuntimeUnavailable, err)
	}

	monitor.MetricsEstablishSessionSuccess.WithLabelValues().Inc()
	monitor.MetricsLiveSessions.Set(float64(o.reg.Len()))
	logger.Infof("established session for %s on container %s", email, containerID)

	return sess, nil
}

// ShellRPC lazily attaches email's Secondary PTY (spec §3's long-lived
// shell-rpc shell, reused across getCwd/listDir/createProject calls within
// one session) and returns a shellrpc.Client bound to it.
func (o *Orchestrator) ShellRPC(ctx context.Context, email string) (*shellrpc.Client, error) {
	sess, ok := o.reg.Get(email)
	if !ok {
		return nil, gwerr.New("orchestrator.ShellRPC", gwerr.KindSessionNotFound, nil)
	}

	if sess.Secondary == nil {
		secondary, err := ptymanager.AttachShell("docker", []string{"exec", "-it", sess.ContainerID, "/bin/bash"}, shellEnv, nil)
		if err != nil {
			return nil, gwerr.New("orchestrator.ShellRPC", gwerr.KindPtyAlloc, err)
		}

		o.reg.SetSecondary(email, secondary)
		sess.Secondary = secondary
	}

	return shellrpc.New(o.rt, sess.ContainerID, sess.Secondary.Master()), nil
}

// killShell signals a live shell's whole process group, verifying its
// command line still names the expected argv before sending any signal
// (procutil.KillProcessGroup's PID-reuse guard).
func killShell(sh *ptymanager.Shell) {
	if sh == nil {
		return
	}

	if err := procutil.KillProcessGroup(sh.PID(), "docker", false); err != nil {
		logger.Warnf("kill process group for pid %d: %v", sh.PID(), err)
	}

	sh.Close()
}
