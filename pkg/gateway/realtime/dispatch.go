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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"devbox-gateway/pkg/common/logutil"
	"devbox-gateway/pkg/gateway/orchestrator"
	"devbox-gateway/pkg/gateway/pump"
	"devbox-gateway/pkg/gateway/shellrpc"
	"devbox-gateway/pkg/gwerr"
)

var logger = logutil.GetLogger("gateway-realtime")

// Dispatcher multiplexes one browser tab's websocket connection across
// however many emails it opens terminals for, delegating every event to
// the Session Orchestrator (spec §4.6) and Shell-RPC Layer (spec §4.7).
type Dispatcher struct {
	orch *orchestrator.Orchestrator
}

// NewDispatcher builds a Dispatcher around orch.
func NewDispatcher(orch *orchestrator.Orchestrator) *Dispatcher {
	return &Dispatcher{orch: orch}
}

// conn wraps a websocket connection with the single mutex every write must
// go through, since gorilla/websocket forbids concurrent writers — the
// Output Pump's goroutine and the dispatch loop both write to it.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		logger.Debugf("write %s failed: %v", event, err)
	}
}

// Serve drives one websocket connection until the client disconnects or a
// fatal read error occurs, tearing down every email this connection
// established a terminal for.
func (d *Dispatcher) Serve(ws *websocket.Conn) {
	c := &conn{ws: ws}

	live := map[string]bool{}

	defer func() {
		for email := range live {
			d.orch.Teardown().Run(email, "client disconnected")
		}
	}()

	for {
		var env Envelope

		if err := ws.ReadJSON(&env); err != nil {
			logger.Debugf("read error, closing connection: %v", err)

			return
		}

		d.handle(c, env, live)
	}
}

func (d *Dispatcher) handle(c *conn, env Envelope, live map[string]bool) {
	ctx := context.Background()

	switch env.Event {
	case EventMessage:
		var text string
		if s, ok := env.Data.(string); ok {
			text = s
		}

		c.send(EventMessageBack, text)

	case EventLoadTerminal:
		var p LoadTerminalPayload
		if !decode(env.Data, &p) {
			return
		}

		d.loadTerminal(c, p.Email, live)

	case EventTerminalInput:
		var p TerminalInputPayload
		if !decode(env.Data, &p) {
			return
		}

		d.terminalInput(c, p)

	case EventTerminalResize:
		var p TerminalResizePayload
		if !decode(env.Data, &p) {
			return
		}

		d.terminalResize(c, p)

	case EventCloseTerminal:
		var p CloseTerminalPayload
		if !decode(env.Data, &p) {
			return
		}

		delete(live, p.Email)
		d.orch.Teardown().Run(p.Email, "close_terminal")
		c.send(EventTerminalClosed, p.Email)

	case EventRepoTree:
		var p RepoTreePayload
		if !decode(env.Data, &p) {
			return
		}

		d.repoTree(ctx, c, p.Email)

	case EventCreateRepo:
		var p CreateRepoPayload
		if !decode(env.Data, &p) {
			return
		}

		d.createRepo(ctx, c, p)

	case EventGetFilesData:
		var p GetFilesDataPayload
		if !decode(env.Data, &p) {
			return
		}

		d.getFilesData(ctx, c, p)

	case EventSaveData:
		var p SaveDataPayload
		if !decode(env.Data, &p) {
			return
		}

		d.saveData(ctx, c, p)

	default:
		logger.Warnf("unknown event %q", env.Event)
	}
}

// errorPayload renders err for a *_error event: a gwerr.Error's Kind leads
// so the browser can branch on it without parsing free text, falling back
// to the plain message for errors the gateway didn't tag itself.
func errorPayload(err error) string {
	var ge *gwerr.Error
	if errors.As(err, &ge) {
		return string(ge.Kind) + ": " + ge.Error()
	}

	return err.Error()
}

// decode re-marshals env.Data (decoded by json.Unmarshal into `any` as a
// map) into the typed payload struct the caller expects.
func decode(data any, out any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}

	return json.Unmarshal(raw, out) == nil
}

// wsSink adapts a connection into a pump.Sink that frames every chunk as a
// terminal_data event for one email. close is shared with the session's
// Shell.Done() watcher so whichever of {pump EOF/error, child exit} fires
// first is the only one that tears the session down and emits the
// client-visible terminal_closed/terminal_error.
type wsSink struct {
	c     *conn
	email string
	orch  *orchestrator.Orchestrator
	close *sync.Once
}

func (s wsSink) Emit(data string) {
	s.c.send(EventTerminalData, data)
}

// EmitInvalid hex-escapes a genuinely undecodable byte run rather than
// dropping it, matching original_source's read_terminal_output fallback.
func (s wsSink) EmitInvalid(raw []byte) {
	s.c.send(EventTerminalData, hexEscape(raw))
}

// EmitClosed implements the Output Pump's EOF case (spec §4.4: emit
// terminal_closed and exit).
func (s wsSink) EmitClosed() {
	s.close.Do(func() {
		s.orch.Teardown().Run(s.email, "pump reached EOF")
		s.c.send(EventTerminalClosed, s.email)
	})
}

// EmitError implements the Output Pump's fatal-read-error case (spec §4.4 /
// §7 PtyIoError: emit terminal_error and terminate the session).
func (s wsSink) EmitError(err error) {
	s.close.Do(func() {
		s.orch.Teardown().Run(s.email, "pump read error")
		s.c.send(EventTerminalError, errorPayload(gwerr.New("dispatcher.pump", gwerr.KindPtyIO, err)))
	})
}

// hexEscape renders raw as a string of "\xHH" escapes, one per byte.
func hexEscape(raw []byte) string {
	escaped := make([]byte, 0, len(raw)*4)

	for _, b := range raw {
		escaped = append(escaped, []byte(fmt.Sprintf("\\x%02x", b))...)
	}

	return string(escaped)
}

func (d *Dispatcher) loadTerminal(c *conn, email string, live map[string]bool) {
	c.send(EventTerminalLoading, email)

	progress := func(msg string) { c.send(EventTerminalInfo, msg) }

	sess, err := d.orch.Establish(context.Background(), email, "", progress)
	if err != nil {
		c.send(EventTerminalError, errorPayload(err))

		return
	}

	live[email] = true

	var closeOnce sync.Once

	p := pump.New(sess.Shell.Master(), wsSink{c: c, email: email, orch: d.orch, close: &closeOnce})

	go p.Run()

	go func() {
		<-sess.Shell.Done()
		p.Stop()
		closeOnce.Do(func() {
			d.orch.Teardown().Run(email, "shell process exited")
			c.send(EventTerminalClosed, email)
		})
	}()

	c.send(EventTerminalSuccess, email)
}

func (d *Dispatcher) terminalInput(c *conn, p TerminalInputPayload) {
	sess, ok := d.orch.Registry().Get(p.Email)
	if !ok || sess.Shell == nil {
		c.send(EventTerminalError, errorPayload(gwerr.New("dispatcher.terminalInput", gwerr.KindSessionNotFound, nil)))

		return
	}

	if _, err := sess.Shell.Master().Write([]byte(p.Data)); err != nil {
		c.send(EventTerminalError, errorPayload(err))
	}
}

func (d *Dispatcher) terminalResize(c *conn, p TerminalResizePayload) {
	sess, ok := d.orch.Registry().Get(p.Email)
	if !ok || sess.Shell == nil {
		c.send(EventTerminalError, errorPayload(gwerr.New("dispatcher.terminalResize", gwerr.KindSessionNotFound, nil)))

		return
	}

	if err := sess.Shell.Resize(int(p.Rows), int(p.Cols)); err != nil {
		logger.Warnf("resize %s: %v", p.Email, err)
		c.send(EventTerminalError, errorPayload(gwerr.New("dispatcher.terminalResize", gwerr.KindPtyIO, err)))
	}
}

func (d *Dispatcher) repoTree(ctx context.Context, c *conn, email string) {
	client, err := d.orch.ShellRPC(ctx, email)
	if err != nil {
		c.send(EventTerminalError, errorPayload(err))

		return
	}

	root := client.GetCwd(ctx)
	tree := client.BuildTree(ctx, root, 0)

	c.send(EventRepoStructure, toRepoStructure(root, tree))
}

func (d *Dispatcher) createRepo(ctx context.Context, c *conn, p CreateRepoPayload) {
	client, err := d.orch.ShellRPC(ctx, p.Email)
	if err != nil {
		c.send(EventTerminalError, errorPayload(err))

		return
	}

	if err := client.CreateProject(ctx, p.ProjectName); err != nil {
		c.send(EventTerminalError, errorPayload(err))

		return
	}

	c.send(EventRepoCreated, p.ProjectName)

	root := client.GetCwd(ctx)
	tree := client.BuildTree(ctx, root, 0)

	c.send(EventRepoStructure, toRepoStructure(root, tree))
}

func (d *Dispatcher) getFilesData(ctx context.Context, c *conn, p GetFilesDataPayload) {
	sess, ok := d.orch.Registry().Get(p.Email)
	if !ok {
		c.send(EventFileError, errorPayload(gwerr.New("dispatcher.getFilesData", gwerr.KindSessionNotFound, nil)))

		return
	}

	content, err := shellrpc.ReadFile(ctx, d.orch.Runtime(), sess.ContainerID, p.Path)
	if err != nil {
		c.send(EventFileError, errorPayload(err))

		return
	}

	c.send(EventFilesData, content)
}

func (d *Dispatcher) saveData(ctx context.Context, c *conn, p SaveDataPayload) {
	sess, ok := d.orch.Registry().Get(p.Email)
	if !ok {
		c.send(EventFileError, errorPayload(gwerr.New("dispatcher.saveData", gwerr.KindSessionNotFound, nil)))

		return
	}

	if err := shellrpc.WriteFile(ctx, d.orch.Runtime(), sess.ContainerID, p.Path, p.Content); err != nil {
		c.send(EventFileError, errorPayload(err))

		return
	}

	c.send(EventFileSaved, p.Path)
}

// toRepoStructure flattens a shellrpc.TreeNode into the wire shape spec §4.7
// names (repo_structure): {"current_directory": ..., "structure": {...}}.
func toRepoStructure(root string, node *shellrpc.TreeNode) RepoStructure {
	return RepoStructure{CurrentDirectory: root, Structure: treeStructure(node)}
}

// treeStructure renders one TreeNode as the nested map repo_structure's
// "structure" field uses: one entry per subdirectory (itself shaped the
// same way), plus a reserved "_files" entry mapping each file's absolute
// path to its basename.
func treeStructure(node *shellrpc.TreeNode) map[string]any {
	out := make(map[string]any, len(node.Children)+1)

	for name, child := range node.Children {
		out[name] = treeStructure(child)
	}

	if len(node.Files) > 0 {
		files := make(map[string]string, len(node.Files))

		for _, name := range node.Files {
			files[node.Path+"/"+name] = name
		}

		out["_files"] = files
	}

	return out
}
