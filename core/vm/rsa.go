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

package vm

import (
	"crypto"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/nexusvm/coreth-precompiles/internal/pubkeycache"
)

// rsaSuccess and rsaFailure are the soft-failure sentinels RSA verification
// returns. Neither is an error path; both are ExitReturned. Callers branch
// on the output value, exactly as with ECRECOVER's empty-bytes sentinel.
var rsaSuccess = make([]byte, 32)

const rsaFailure = byte(0x01)

// byteCursor is a forward-only reader over a length-prefixed wire layout,
// turning out-of-bounds slicing into a normal error instead of a panic.
type byteCursor struct {
	b   []byte
	pos int
}

func (c *byteCursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.b) {
		return nil, errors.New("e convert failed")
	}
	out := c.b[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *byteCursor) takeLen() (int, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(b)), nil
}

// decodeRsaInput parses the RSA precompile's wire layout:
//
//	e_bytes(4) | n_len(4) | n_bytes | msg_len(4) | msg_bytes | sig_len(4) | sig_bytes
func decodeRsaInput(input []byte) (n *big.Int, e int, msg, sig []byte, err error) {
	c := &byteCursor{b: input}

	eBytes, err := c.take(4)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	e = int(new(big.Int).SetBytes(eBytes).Int64())

	nLen, err := c.takeLen()
	if err != nil {
		return nil, 0, nil, nil, err
	}
	nBytes, err := c.take(nLen)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	n = new(big.Int).SetBytes(nBytes)

	msgLen, err := c.takeLen()
	if err != nil {
		return nil, 0, nil, nil, err
	}
	msg, err = c.take(msgLen)
	if err != nil {
		return nil, 0, nil, nil, err
	}

	sigLen, err := c.takeLen()
	if err != nil {
		return nil, 0, nil, nil, err
	}
	sig, err = c.take(sigLen)
	if err != nil {
		return nil, 0, nil, nil, err
	}

	return n, e, msg, sig, nil
}

// RSA, address 0xf4. Verifies a PKCS1v15 signature with no pre-hash: msg
// is treated as an already-computed digest, matching rsa.PaddingScheme's
// hash:None mode in the reference implementation. crypto.Hash(0) is the
// Go standard library's equivalent: VerifyPKCS1v15 skips the DigestInfo
// prefix check and compares the padded message directly.
//
// newRsaRunner binds a pubkeycache.Cache so repeated calls against the
// same signer key skip rebuilding the *rsa.PublicKey; the precompile set
// constructs exactly one cache and shares it across every call through
// this closure.
func newRsaRunner(cache *pubkeycache.Cache) LinearRunFunc {
	return func(input []byte, _ uint64) ([]byte, error) {
		n, e, msg, sig, err := decodeRsaInput(input)
		if err != nil {
			return nil, err
		}
		if n.Sign() <= 0 || e <= 1 {
			return nil, errors.New("invalid rsa modulus")
		}

		pub := cache.Get(e, n)
		if err := rsa.VerifyPKCS1v15(pub, crypto.Hash(0), msg, sig); err != nil {
			return []byte{rsaFailure}, nil
		}
		return rsaSuccess, nil
	}
}
