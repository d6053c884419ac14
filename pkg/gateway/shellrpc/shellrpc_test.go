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

package shellrpc

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// fakeShell is an in-memory SecondaryShell: writes are discarded (a real
// shell would act on them), reads serve a canned response once.
type fakeShell struct {
	out *bytes.Reader
}

func newFakeShell(response string) *fakeShell {
	return &fakeShell{out: bytes.NewReader([]byte(response))}
}

func (f *fakeShell) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeShell) Read(p []byte) (int, error)  { return f.out.Read(p) }

func TestStripANSI(t *testing.T) {
	in := "\x1b[0;32mroot@box\x1b[0m:/home#"
	got := stripANSI(in)

	if strings.Contains(got, "\x1b") {
		t.Fatalf("escape codes survived: %q", got)
	}
}

func TestIsNoiseLineFiltersPromptsAndEcho(t *testing.T) {
	cases := []struct {
		line    string
		command string
		noise   bool
	}{
		{"", "pwd", true},
		{"pwd", "pwd", true},
		{"root@dev-env:/home#", "pwd", true},
		{"/home/project", "pwd", false},
	}

	for _, c := range cases {
		if got := isNoiseLine(c.line, c.command); got != c.noise {
			t.Errorf("isNoiseLine(%q, %q) = %v, want %v", c.line, c.command, got, c.noise)
		}
	}
}

func TestNormalizeCwdMapsRootToHome(t *testing.T) {
	if got := normalizeCwd("/"); got != homeDir {
		t.Fatalf("got %q, want %q", got, homeDir)
	}

	if got := normalizeCwd("/home/project"); got != "/home/project" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeProjectName(t *testing.T) {
	got := SanitizeProjectName("my project!@# (v2)")
	if got != "myprojectv2" {
		t.Fatalf("got %q", got)
	}
}

func TestGetCwdParsesPwdOutput(t *testing.T) {
	shell := newFakeShell("pwd\r\n/home/project\r\nroot@dev-env:/home/project# ")
	c := New(nil, "container-1", shell)

	got := c.GetCwd(context.TODO())
	if got != "/home/project" {
		t.Fatalf("got %q, want /home/project", got)
	}
}

func TestListDirParsesLsOutput(t *testing.T) {
	out := "drwxr-xr-x 2 root root 4096 Jan 1 00:00 src\n" +
		"-rw-r--r-- 1 root root   12 Jan 1 00:00 main.go\n" +
		"root@dev-env:/home/project# "

	shell := newFakeShell(out)
	c := New(nil, "container-1", shell)

	entries := c.ListDir(context.TODO(), "/home/project")
	if len(entries) != 2 {
		t.Fatalf("got %d entries: %+v", len(entries), entries)
	}

	if entries[0].Name != "src" || !entries[0].IsDir {
		t.Errorf("entry 0 = %+v", entries[0])
	}

	if entries[1].Name != "main.go" || entries[1].IsDir {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestParentDir(t *testing.T) {
	cases := map[string]string{
		"/home/project/main.go": "/home/project",
		"/main.go":              "",
		"main.go":               "",
	}

	for in, want := range cases {
		if got := parentDir(in); got != want {
			t.Errorf("parentDir(%q) = %q, want %q", in, got, want)
		}
	}
}
