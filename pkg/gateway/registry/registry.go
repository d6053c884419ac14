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

// Package registry implements the Session Registry (spec §4.3): the single
// source of truth mapping an email to its live Session, kept consistent
// across the Session Orchestrator, Output Pump, Input Router and Teardown
// Controller. Invariant 1: at most one live interactive Session per email.
package registry

import (
	"sync"

	"devbox-gateway/pkg/gateway/ptymanager"
)

// Session is everything the registry indexes for one email's live terminal.
type Session struct {
	Email       string
	ClientID    string
	ContainerID string
	Shell       *ptymanager.Shell

	// Secondary is the long-lived shell-rpc pty for this email, created
	// lazily on first getCwd/listDir/createProject call (spec §3's
	// Secondary PTY entity) and torn down alongside Shell.
	Secondary *ptymanager.Shell
}

// Registry holds the gateway's only authoritative record of live sessions.
// Every mutation takes lock; callers must never perform blocking I/O while
// holding it — the same discipline the teacher's backend/handler.go follows
// for its staleSessions map: duplicate (or snapshot) whatever is needed
// under the lock, then release it before any syscall.
type Registry struct {
	mu      sync.Mutex
	byEmail map[string]*Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byEmail: make(map[string]*Session)}
}

// Get returns the live session for email, if any.
func (r *Registry) Get(email string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byEmail[email]

	return s, ok
}

// Put records sess as the live session for its Email, enforcing invariant 1:
// a second load_terminal for an email that already has a live session must
// go through Remove (after an explicit teardown) first — Put never
// silently overwrites an entry that has a Shell attached. An entry without
// a Shell (still being established) is not live and is replaced.
func (r *Registry) Put(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEmail[sess.Email]; ok && existing.Shell != nil {
		return ErrAlreadyActive{Email: sess.Email}
	}

	r.byEmail[sess.Email] = sess

	return nil
}

// Remove deletes the session for email if present, returning it. This is
// the single dedup point the Teardown Controller uses: whichever of
// close_terminal, child-exit, or disconnect fires first wins, because only
// the first Remove call observes ok==true (spec §4.8/§4.9).
func (r *Registry) Remove(email string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byEmail[email]
	if ok {
		delete(r.byEmail, email)
	}

	return s, ok
}

// SetSecondary attaches the lazily-created Secondary PTY to email's session.
func (r *Registry) SetSecondary(email string, sh *ptymanager.Shell) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byEmail[email]; ok {
		s.Secondary = sh
	}
}

// Len reports the number of live sessions, used by tests and metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byEmail)
}

// ErrAlreadyActive is returned by Put when email already has a live
// session — the caller (Session Orchestrator) must close the stale one
// first rather than overwrite it, per spec §4.9's design note.
type ErrAlreadyActive struct {
	Email string
}

func (e ErrAlreadyActive) Error() string {
	return "registry: " + e.Email + " already has a live session"
}
