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

// Package profile is the gateway's thin collaborator for the persistent
// profile store named in the external interface: a per-user record keyed by
// email that remembers the docker_container_id of the user's sandbox, so a
// reconnecting browser is handed back the same container instead of a fresh
// one. The store's schema beyond that one column, and its storage engine,
// are explicitly out of scope; this package only needs Get/SetContainerID.
package profile

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config selects and configures the profile store backend.
type Config struct {
	// Path is the TOML file backing the default Store implementation.
	Path string `toml:"path"`
}

// Record is the subset of a user profile the gateway cares about.
type Record struct {
	Email             string `toml:"email"`
	DockerContainerID string `toml:"docker_container_id"`
}

// Store is the gateway's view of the persistent profile collaborator.
type Store interface {
	// Get returns the record for email, or a zero Record with ok=false if
	// none exists yet.
	Get(email string) (rec Record, ok bool, err error)
	// SetContainerID persists the container id resolved for email.
	SetContainerID(email, containerID string) error
}

// fileStore is a toml-file-backed Store. The examples pack carries no SQL
// driver (no lib/pq, pgx, go-sql-driver, or gorm.io/gorm anywhere in the
// retrieved repos); the gateway's own config is already TOML end-to-end
// (BurntSushi/toml, matching the teacher's cmd/.../app/cmd.go), so the
// default store reuses that format rather than inventing a database
// dependency with nothing in the corpus to ground it on.
type fileStore struct {
	path string
	mu   sync.Mutex
}

type fileFormat struct {
	Users []Record `toml:"users"`
}

// NewFileStore opens (or creates) a toml-backed profile store at path.
func NewFileStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("profile store: path must not be empty")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte{}, 0o600); err != nil {
			return nil, fmt.Errorf("profile store: create %s: %w", path, err)
		}
	}

	return &fileStore{path: path}, nil
}

func (s *fileStore) load() (fileFormat, error) {
	var f fileFormat

	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}

		return f, fmt.Errorf("profile store: decode %s: %w", s.path, err)
	}

	return f, nil
}

func (s *fileStore) save(f fileFormat) error {
	tmp := s.path + ".tmp"

	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("profile store: open %s: %w", tmp, err)
	}

	enc := toml.NewEncoder(fh)
	if err := enc.Encode(f); err != nil {
		fh.Close()

		return fmt.Errorf("profile store: encode: %w", err)
	}

	if err := fh.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}

func (s *fileStore) Get(email string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return Record{}, false, err
	}

	for _, u := range f.Users {
		if u.Email == email {
			return u, true, nil
		}
	}

	return Record{}, false, nil
}

func (s *fileStore) SetContainerID(email, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	for i := range f.Users {
		if f.Users[i].Email == email {
			f.Users[i].DockerContainerID = containerID

			return s.save(f)
		}
	}

	f.Users = append(f.Users, Record{Email: email, DockerContainerID: containerID})

	return s.save(f)
}
