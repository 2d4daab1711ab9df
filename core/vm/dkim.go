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
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/nexusvm/coreth-precompiles/emailhash"
	"github.com/nexusvm/coreth-precompiles/internal/mailparse"
)

const maxSelectorOrSDIDLen = 32

// EMAIL_DKIM_PARSE, reserved address 0x0402 (see AddrEmailDkim). Parses a
// raw RFC 5322 email, hashes its From address, pulls the hex-encoded
// subject and the first DKIM-Signature header's selector/sdid/signature,
// and assembles them into the ABI-shaped blob downstream contracts decode.
//
// The byte offsets below are consensus-critical: a Solidity decoder on the
// other side reads this as (bytes32, bytes32, bytes32, bytes32, bytes,
// bytes). Nothing here should be "cleaned up".
func runEmailDkimParse(input []byte, _ uint64) ([]byte, error) {
	msg, err := mailparse.Parse(input)
	if err != nil {
		return nil, errors.New("email parse failed")
	}

	subject, err := extractSubjectHash(msg.Subject)
	if err != nil {
		return nil, err
	}

	fromAddr, err := mailparse.FromAddress(msg.From)
	if err != nil {
		return nil, errors.New("get email from header failed")
	}
	from, err := emailhash.Hash(fromAddr)
	if err != nil {
		return nil, err
	}

	sig := msg.DKIM[0]
	if len(sig.Selector) > maxSelectorOrSDIDLen || len(sig.SDID) > maxSelectorOrSDIDLen {
		return nil, errors.New("get email subject failed")
	}

	return assembleDkimOutput(from, subject, sig), nil
}

// extractSubjectHash splits the raw Subject header on the literal "0x"
// and hex-decodes the text immediately following the first occurrence,
// requiring exactly 32 decoded bytes.
func extractSubjectHash(subject string) ([32]byte, error) {
	var out [32]byte

	// Split on every "0x", not just the first: the hex payload is the
	// segment between the first and second occurrence (or to the end of
	// the header if there is no second one).
	parts := strings.Split(subject, "0x")
	if len(parts) < 2 {
		return out, errors.New("get email subject header failed")
	}

	decoded, err := hex.DecodeString(parts[1])
	if err != nil {
		return out, errors.New("invalid subject")
	}
	if len(decoded) != 32 {
		return out, errors.New("invalid email subject")
	}
	copy(out[:], decoded)
	return out, nil
}

// assembleDkimOutput lays out the fixed-shape blob runEmailDkimParse
// returns.
//
//	offset  size  content
//	0       32    from hash
//	32      32    subject hash
//	64      32    selector, left-justified
//	96      32    sdid, left-justified
//	128     32    reserved, zero
//	159     1     0xc0 (ABI dynamic-bytes offset-high marker)
//	188     4     0xe0 + ceil32(len(message))   (BE)
//	220     4     len(message)                  (BE)
//	224     —     message, zero-padded to a ceil32 boundary
//	+28     4     len(signature)                (BE)
//	+32     —     signature
func assembleDkimOutput(from, subject [32]byte, sig mailparse.DKIMSignature) []byte {
	messageLenCeil := ceil32(len(sig.Message))
	total := 224 + messageLenCeil + 32 + len(sig.Signature)

	out := make([]byte, total)
	copy(out[0:32], from[:])
	copy(out[32:64], subject[:])
	copy(out[64:64+len(sig.Selector)], sig.Selector)
	copy(out[96:96+len(sig.SDID)], sig.SDID)
	out[159] = 0xc0
	binary.BigEndian.PutUint32(out[188:192], uint32(0xe0+messageLenCeil))
	binary.BigEndian.PutUint32(out[220:224], uint32(len(sig.Message)))
	copy(out[224:224+len(sig.Message)], sig.Message)

	sigLenOff := 224 + messageLenCeil + 28
	copy(out[sigLenOff+4:sigLenOff+4+len(sig.Signature)], sig.Signature)
	binary.BigEndian.PutUint32(out[sigLenOff:sigLenOff+4], uint32(len(sig.Signature)))

	return out
}

// ceil32 rounds n up to the next multiple of 32. dkim_message_len_ceil in
// the spec is (len/32 + 1)*32, which is the same thing except it always
// adds a full word even when len is already a multiple of 32; that
// behavior is preserved here since a decoder on the other side relies on
// there always being at least one word of padding after the message.
func ceil32(n int) int {
	return (n/32 + 1) * 32
}
