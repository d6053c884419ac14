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

package registry

import "testing"

func TestPutReplacesShellLessSession(t *testing.T) {
	r := New()

	if err := r.Put(&Session{Email: "a@example.com"}); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	// The first session has no Shell yet (still being established);
	// Put must still succeed for the same email since nothing is "active".
	if err := r.Put(&Session{Email: "a@example.com"}); err != nil {
		t.Fatalf("Put over a shell-less session should succeed, got: %v", err)
	}
}

func TestRemoveIsTheSingleDedupPoint(t *testing.T) {
	r := New()
	_ = r.Put(&Session{Email: "a@example.com"})

	_, ok1 := r.Remove("a@example.com")
	_, ok2 := r.Remove("a@example.com")

	if !ok1 {
		t.Fatal("first Remove should observe the session")
	}

	if ok2 {
		t.Fatal("second Remove should observe nothing: exactly one trigger should win")
	}
}

func TestGetMissing(t *testing.T) {
	r := New()
	if _, ok := r.Get("nobody@example.com"); ok {
		t.Fatal("expected no session for unknown email")
	}
}
