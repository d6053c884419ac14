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

package procutil

import (
	"strings"
	"testing"
)

func TestFindChildProcesses(t *testing.T) {
	processes := []*Process{
		{PID: 1, PPID: 0, Name: "init"},
		{PID: 10, PPID: 1, Name: "bash"},
		{PID: 11, PPID: 10, Name: "vim"},
		{PID: 12, PPID: 10, Name: "grep"},
		{PID: 20, PPID: 1, Name: "sshd"},
	}

	got := FindChildProcesses(1, processes)

	want := map[int]bool{10: true, 11: true, 12: true, 20: true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want pids %v", got, want)
	}

	for _, pid := range got {
		if !want[pid] {
			t.Errorf("unexpected pid %d in result", pid)
		}
	}
}

func TestReverseSlice(t *testing.T) {
	s := []int{1, 2, 3, 4, 5}
	ReverseSlice(s)

	want := []int{5, 4, 3, 2, 1}
	for i := range s {
		if s[i] != want[i] {
			t.Fatalf("ReverseSlice() = %v, want %v", s, want)
		}
	}
}

func TestContains(t *testing.T) {
	if !Contains([]string{"a", "b", "c"}, "b") {
		t.Error("expected Contains to find \"b\"")
	}

	if Contains([]string{"a", "b", "c"}, "z") {
		t.Error("expected Contains to not find \"z\"")
	}
}

func TestOneRead(t *testing.T) {
	r, err := OneRead(strings.NewReader("hello shell"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf := make([]byte, 32)

	n, err := r.Read(buf)
	if err != nil && n == 0 {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(buf[:n]) != "hello shell" {
		t.Errorf("got %q, want %q", string(buf[:n]), "hello shell")
	}
}
