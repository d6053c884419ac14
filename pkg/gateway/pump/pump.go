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

// Package pump implements the Output Pump (spec §4.4): a read loop over the
// pty master that never blocks the rest of the gateway, cooperatively
// cancellable, and careful never to split a multi-byte UTF-8 rune across two
// terminal_data emits.
package pump

import (
	"io"
	"unicode/utf8"

	"devbox-gateway/pkg/common/logutil"
)

var logger = logutil.GetLogger("gateway-pump")

const (
	readBufferSize = 4096
	// maxRuneBytes is the longest a UTF-8 encoded rune can be.
	maxRuneBytes = utf8.UTFMax
)

// Sink receives decoded output chunks. Emit is called from the pump's own
// goroutine; implementations must not block indefinitely.
type Sink interface {
	Emit(data string)
	// EmitInvalid is called for a trailing byte run that never became
	// decodable (spec §4.4's hex-escape fallback) — e.g. the process
	// wrote raw binary rather than text.
	EmitInvalid(raw []byte)
	// EmitClosed is called once, when the reader hits a clean EOF (spec
	// §4.4: emit terminal_closed and exit).
	EmitClosed()
	// EmitError is called once, when the reader returns any non-EOF error
	// (spec §4.4 / §7 PtyIoError: emit terminal_error and terminate the
	// session).
	EmitError(err error)
}

// Pump reads from an io.Reader (the pty master) until Stop is called or the
// reader returns an error, decoding to UTF-8-safe chunks as it goes.
type Pump struct {
	r    io.Reader
	sink Sink
	stop chan struct{}
	done chan struct{}
}

// New creates a Pump reading r and forwarding decoded chunks to sink.
func New(r io.Reader, sink Sink) *Pump {
	return &Pump{r: r, sink: sink, stop: make(chan struct{}), done: make(chan struct{})}
}

// Stop asks the pump to exit after its current read unblocks; it does not
// itself close the underlying reader — the Teardown Controller owns that so
// a single codepath is the one to ever close the pty master (spec §9's
// child-exit-vs-pump-EOF race note).
func (p *Pump) Stop() {
	close(p.stop)
}

// Done is closed once the pump's goroutine has returned.
func (p *Pump) Done() <-chan struct{} { return p.done }

// Run drives the read loop. Intended to be run in its own goroutine; returns
// when the reader hits EOF/error or Stop is called.
func (p *Pump) Run() {
	defer close(p.done)

	var pending []byte

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		n, err := p.r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = p.drain(pending)
		}

		if err != nil {
			if len(pending) > 0 {
				p.sink.EmitInvalid(pending)
			}

			if err == io.EOF {
				p.sink.EmitClosed()
			} else {
				logger.Debugf("pump read error: %v", err)
				p.sink.EmitError(err)
			}

			return
		}
	}
}

// drain decodes as much of buf as is safely decodable and emits it, holding
// back only a trailing partial multi-byte sequence (spec §4.4: shrink the
// chunk boundary until it ends on a full rune, never truncate mid-rune).
// Bytes that still fail to decode even once shrunk to nothing are handed to
// the caller's hex-escape fallback via EmitInvalid.
func (p *Pump) drain(buf []byte) []byte {
	if len(buf) == 0 {
		return buf
	}

	cut := len(buf)

	for cut > 0 && !utf8.Valid(buf[:cut]) {
		cut--
	}

	if cut > 0 {
		p.sink.Emit(string(buf[:cut]))
	}

	remainder := buf[cut:]

	if len(remainder) >= maxRuneBytes {
		// No valid rune is this long; shrinking further would never
		// succeed, so the remainder is genuinely invalid, not just
		// truncated at a chunk boundary.
		p.sink.EmitInvalid(remainder)

		return nil
	}

	return append([]byte(nil), remainder...)
}
