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

package realtime

import (
	"testing"

	"devbox-gateway/pkg/gateway/shellrpc"
)

func TestDecodeRoundTripsLoadTerminalPayload(t *testing.T) {
	raw := map[string]any{"email": "a@example.com"}

	var p LoadTerminalPayload
	if !decode(raw, &p) {
		t.Fatal("decode failed")
	}

	if p.Email != "a@example.com" {
		t.Fatalf("got %q", p.Email)
	}
}

func TestDecodeRejectsMismatchedShape(t *testing.T) {
	var p TerminalResizePayload
	if decode("not an object", &p) {
		t.Fatal("expected decode to fail for a bare string into a struct")
	}
}

func TestToRepoStructureFlattensTree(t *testing.T) {
	node := &shellrpc.TreeNode{
		Path:  "/home/project",
		Files: []string{"main.go", "go.mod"},
		Children: map[string]*shellrpc.TreeNode{
			"src": {Path: "/home/project/src", Files: []string{"lib.go"}, Children: map[string]*shellrpc.TreeNode{}},
		},
	}

	out := toRepoStructure("/home/project", node)

	if out.CurrentDirectory != "/home/project" {
		t.Fatalf("got current_directory %q", out.CurrentDirectory)
	}

	files, ok := out.Structure["_files"].(map[string]string)
	if !ok {
		t.Fatalf("expected _files to be a map[string]string, got %T", out.Structure["_files"])
	}

	if len(files) != 2 || files["/home/project/main.go"] != "main.go" || files["/home/project/go.mod"] != "go.mod" {
		t.Fatalf("got files %v", files)
	}

	child, ok := out.Structure["src"].(map[string]any)
	if !ok {
		t.Fatalf("expected src child to be a map[string]any, got %T", out.Structure["src"])
	}

	childFiles, ok := child["_files"].(map[string]string)
	if !ok || childFiles["/home/project/src/lib.go"] != "lib.go" {
		t.Fatalf("got child _files %v", child["_files"])
	}
}

func TestHexEscapeFormatsEveryByte(t *testing.T) {
	got := hexEscape([]byte{0xff, 0x00, 0x41})
	if got != `\xff\x00\x41` {
		t.Fatalf("got %q", got)
	}
}
