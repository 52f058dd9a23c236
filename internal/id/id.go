// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package id generates opaque identifiers rendered in Base62.
package id

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxLen is the length of the largest 128-bit value in Base62.
const MaxLen = 22

var (
	base     = big.NewInt(62)
	maxValue = new(big.Int).Lsh(big.NewInt(1), 128)
)

// New returns a random UUIDv4 encoded as Base62.
func New() string {
	u := uuid.New()
	return Encode(u[:])
}

// NewULID returns a ULID encoded as Base62. ULIDs sort by creation time.
func NewULID() string {
	u := ulid.MustNew(ulid.Now(), rand.Reader)
	return Encode(u[:])
}

// Encode renders a big-endian byte string as Base62 without padding.
func Encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return "0"
	}

	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Valid reports whether s is a Base62 rendering of a 128-bit value.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLen {
		return false
	}
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(alphabet, s[i])
		if d < 0 {
			return false
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(d)))
	}
	return n.Cmp(maxValue) < 0
}

// Source produces identifiers. Services depend on it so tests can pin values.
type Source interface {
	New() string
}

// Random is the production Source.
type Random struct{}

// New returns a fresh Base62 UUID.
func (Random) New() string { return New() }
