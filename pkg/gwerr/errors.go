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

// Package gwerr gives every gateway error a stable Kind so a caller can map
// it to a client-facing terminal_error / *_error event without parsing
// message text.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error classes named by the gateway's external
// interface: each maps onto a specific outbound error event or HTTP status.
type Kind string

const (
	KindConfigMissing      Kind = "config_missing"
	KindStoreError         Kind = "store_error"
	KindRuntimeUnavailable Kind = "runtime_unavailable"
	KindContainerStart     Kind = "container_start_failed"
	KindImagePull          Kind = "image_pull_failed"
	KindPtyAlloc           Kind = "pty_alloc_failed"
	KindSessionNotFound    Kind = "session_not_found"
	KindPtyIO              Kind = "pty_io_error"
	KindRPCTimeout         Kind = "rpc_timeout"
	KindBadInput           Kind = "bad_input"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error rooted at op (the component/operation that
// detected it), with kind identifying the external interface error it maps
// to, wrapping cause if non-nil.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}

	return false
}
