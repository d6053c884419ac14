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

package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"devbox-gateway/pkg/gateway/profile"
	"devbox-gateway/pkg/gateway/registry"
	"devbox-gateway/pkg/gateway/runtime"
)

type fakeStore struct {
	records map[string]profile.Record
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]profile.Record{}} }

func (s *fakeStore) Get(email string) (profile.Record, bool, error) {
	rec, ok := s.records[email]

	return rec, ok, nil
}

func (s *fakeStore) SetContainerID(email, containerID string) error {
	s.records[email] = profile.Record{Email: email, DockerContainerID: containerID}

	return nil
}

type fakeRuntime struct {
	ensureErr error
}

func (r *fakeRuntime) EnsureContainer(ctx context.Context, email, existingID string, progress runtime.Progress) (string, error) {
	if r.ensureErr != nil {
		return "", r.ensureErr
	}

	return "container-" + email, nil
}

func (r *fakeRuntime) PullImage(ctx context.Context) error { return nil }

func (r *fakeRuntime) Exec(ctx context.Context, containerID string, cmd []string, tty bool) (runtime.ExecHandle, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func TestEstablishFailsWhenContainerCannotBeEnsured(t *testing.T) {
	reg := registry.New()
	store := newFakeStore()
	rt := &fakeRuntime{ensureErr: fmt.Errorf("docker daemon unreachable")}

	o := New(reg, rt, store)

	_, err := o.Establish(context.Background(), "a@example.com", "client-1", nil)
	if err == nil {
		t.Fatal("expected error when EnsureContainer fails")
	}

	if _, ok := reg.Get("a@example.com"); ok {
		t.Fatal("no session should be registered on failure")
	}
}

func TestControllerRunIsIdempotent(t *testing.T) {
	reg := registry.New()
	_ = reg.Put(&registry.Session{Email: "a@example.com"})

	c := NewController(reg)

	c.Run("a@example.com", "test teardown")

	if _, ok := reg.Get("a@example.com"); ok {
		t.Fatal("session should be removed after teardown")
	}

	// Second call must be a silent no-op: nothing left to tear down twice.
	c.Run("a@example.com", "second trigger racing in")
}

func TestShellRPCFailsWithoutLiveSession(t *testing.T) {
	reg := registry.New()
	store := newFakeStore()
	rt := &fakeRuntime{}

	o := New(reg, rt, store)

	if _, err := o.ShellRPC(context.Background(), "nobody@example.com"); err == nil {
		t.Fatal("expected error for a session that was never established")
	}
}
