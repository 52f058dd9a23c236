// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// HashLen is the length of a stretched password hash in hex characters.
const HashLen = sha512.Size * 2

// dummySalt is stretched against when a mail address is unknown so that
// signin does the same work either way.
const dummySalt = "dummy"

// Stretch iterates SHA-512 over "password:salt:pepper" count times, feeding
// the lowercase hex digest of each round into the next. A count below one is
// treated as one.
func Stretch(password, salt, pepper string, count int) string {
	if count < 1 {
		count = 1
	}

	buf := []byte(password + ":" + salt + ":" + pepper)
	out := make([]byte, HashLen)
	for range count {
		sum := sha512.Sum512(buf)
		hex.Encode(out, sum[:])
		buf = append(buf[:0], out...)
	}
	return string(out)
}

// Stretcher binds the server pepper and iteration count.
type Stretcher struct {
	Pepper string
	Count  int
}

// NewStretcher creates a Stretcher.
func NewStretcher(pepper string, count int) Stretcher {
	return Stretcher{Pepper: pepper, Count: count}
}

// Hash stretches password with salt.
func (s Stretcher) Hash(password, salt string) string {
	return Stretch(password, salt, s.Pepper, s.Count)
}

// Verify reports whether password stretches to hash. The comparison is
// constant-time.
func (s Stretcher) Verify(password, salt, hash string) bool {
	computed := s.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// Burn does the work of a verification and discards the result.
func (s Stretcher) Burn(password string) {
	_ = s.Hash(password, dummySalt)
}
