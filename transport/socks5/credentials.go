// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCredentials is returned by a StaticCredentialStore when a
// username is unknown or its password doesn't match the stored hash.
var ErrInvalidCredentials = errors.New("socks5: invalid username or password")

// credentialEntry is one user's record in a credentials YAML file. Hash is
// a bcrypt hash, never a plaintext password.
type credentialEntry struct {
	Username string `yaml:"username"`
	Hash     string `yaml:"bcrypt_hash"`
}

// credentialsFile is the top-level shape of a credentials YAML document.
type credentialsFile struct {
	Users []credentialEntry `yaml:"users"`
}

// StaticCredentialStore authenticates RFC 1929 username/password
// sub-negotiation against an in-memory table of bcrypt-hashed passwords.
// It never holds a plaintext password after construction.
type StaticCredentialStore struct {
	hashes map[string][]byte
}

// NewStaticCredentialStore builds a store from username -> bcrypt-hash
// pairs, as already produced by HashPassword or stored in a credentials
// file.
func NewStaticCredentialStore(hashesByUsername map[string]string) *StaticCredentialStore {
	s := &StaticCredentialStore{hashes: make(map[string][]byte, len(hashesByUsername))}
	for user, hash := range hashesByUsername {
		s.hashes[user] = []byte(hash)
	}
	return s
}

// LoadCredentialsFile reads a YAML document of the form:
//
//	users:
//	  - username: alice
//	    bcrypt_hash: $2a$10$...
//
// using os.ReadFile + yaml.Unmarshal. It fails if the document lists no
// users, or a user with an empty username or bcrypt_hash, or the same
// username twice.
func LoadCredentialsFile(path string) (*StaticCredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("socks5: read credentials file: %w", err)
	}
	var doc credentialsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("socks5: parse credentials file: %w", err)
	}
	if len(doc.Users) == 0 {
		return nil, errors.New("socks5: credentials file: at least one user is required")
	}
	hashes := make(map[string][]byte, len(doc.Users))
	for i, u := range doc.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("socks5: credentials file: users[%d]: username is required", i)
		}
		if u.Hash == "" {
			return nil, fmt.Errorf("socks5: credentials file: users[%d]: bcrypt_hash is required", i)
		}
		if _, dup := hashes[u.Username]; dup {
			return nil, fmt.Errorf("socks5: credentials file: users[%d]: duplicate username %q", i, u.Username)
		}
		hashes[u.Username] = []byte(u.Hash)
	}
	return &StaticCredentialStore{hashes: hashes}, nil
}

// HashPassword bcrypt-hashes password at the default cost, for generating
// a credentials file offline.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("socks5: hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate implements the AuthenticateFunc signature expected by
// WithAuthenticate. It runs a constant-time bcrypt comparison; an unknown
// username still pays the comparison cost against a dummy hash, so an
// attacker can't distinguish "no such user" from "wrong password" by
// timing.
func (s *StaticCredentialStore) Authenticate(_ context.Context, username, password string, _ net.Addr) error {
	hash, ok := s.hashes[username]
	if !ok {
		hash = unknownUserHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// unknownUserHash is a valid bcrypt hash of a password no caller knows,
// compared against when the username isn't in the store.
var unknownUserHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5uINMzwBwWWiAc.YqKmGtoa1yrn9S")

var _ AuthenticateFunc = (&StaticCredentialStore{}).Authenticate
