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

package profile

import (
	"path/filepath"
	"testing"
)

func TestFileStoreGetSetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.toml")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, ok, err := store.Get("alice@example.com"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	if err := store.SetContainerID("alice@example.com", "abc123"); err != nil {
		t.Fatalf("SetContainerID: %v", err)
	}

	rec, ok, err := store.Get("alice@example.com")
	if err != nil || !ok {
		t.Fatalf("Get after set: ok=%v err=%v", ok, err)
	}

	if rec.DockerContainerID != "abc123" {
		t.Errorf("got container id %q, want %q", rec.DockerContainerID, "abc123")
	}

	// A second store instance pointed at the same file sees the update.
	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore (reopen): %v", err)
	}

	rec2, ok, err := store2.Get("alice@example.com")
	if err != nil || !ok || rec2.DockerContainerID != "abc123" {
		t.Fatalf("reopen: rec=%+v ok=%v err=%v", rec2, ok, err)
	}

	if err := store.SetContainerID("alice@example.com", "def456"); err != nil {
		t.Fatalf("SetContainerID overwrite: %v", err)
	}

	rec3, _, _ := store.Get("alice@example.com")
	if rec3.DockerContainerID != "def456" {
		t.Errorf("got container id %q after overwrite, want %q", rec3.DockerContainerID, "def456")
	}
}
