// (c) 2019-2020, Ava Labs, Inc.
//
// This file is a derived work, based on the go-ethereum library whose original
// notices appear below.
//
// It is distributed under a license compatible with the licensing terms of the
// original code from which it is derived.
//
// Much love to the original authors for their work.
// **********
// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package emailhash derives the deterministic 32-byte identifier the
// EMAIL_DKIM_PARSE precompile embeds for a message's From address. The
// digest is reversed and top-byte masked so it fits a BN254 scalar,
// letting zk circuits consume it directly.
package emailhash

import (
	"crypto/sha256"
	"errors"
	"strings"
)

const (
	// MinLen and MaxLen bound localpart@domain, inclusive.
	MinLen = 6
	MaxLen = 100
	// BlockLen is the number of 31-byte chunks the padded input is grown
	// to before hashing, i.e. 100/31 + 1.
	BlockLen = MaxLen/31 + 1
)

// asciiLower lowercases only 'A'-'Z', leaving every other byte untouched.
// strings.ToLower does full Unicode case folding, which would remap bytes
// outside A-Z that the original's str::make_ascii_lowercase leaves alone;
// since the result feeds a consensus-critical hash, it must match the
// original byte-for-byte rather than follow Unicode casing rules.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Hash normalizes from (ASCII-lowercased, Gmail dot-stripped) and returns
// its 32-byte identifier. from is not mutated.
func Hash(from string) ([32]byte, error) {
	var out [32]byte

	lower := asciiLower(from)
	at := strings.IndexByte(lower, '@')
	if at < 0 || strings.IndexByte(lower[at+1:], '@') >= 0 {
		return out, errors.New("email address must contain exactly one '@'")
	}
	local, domain := lower[:at], lower[at+1:]
	if domain == "gmail.com" {
		local = strings.ReplaceAll(local, ".", "")
	}

	length := len(local) + 1 + len(domain)
	if length < MinLen || length > MaxLen {
		return out, errors.New("invalid email from len, should be between 6 and 100")
	}

	h := sha256.New()
	h.Write([]byte(local))
	h.Write([]byte{'@'})
	h.Write([]byte(domain))
	h.Write(make([]byte, BlockLen*31-length))
	digest := h.Sum(nil)

	for i, b := range digest {
		out[len(digest)-1-i] = b
	}
	out[31] &= 0x1f
	return out, nil
}
