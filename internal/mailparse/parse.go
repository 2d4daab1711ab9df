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

// Package mailparse is the raw-email collaborator the EMAIL_DKIM_PARSE
// precompile calls into: given a raw RFC 5322 message it hands back the
// Subject, the bare From address, and the tag/value pairs of every
// DKIM-Signature header, plus that signature's canonicalized content.
// It never validates a signature; that is left to the RSA precompile.
package mailparse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/mail"
	"strings"
)

// DKIMSignature holds the tags of one DKIM-Signature header that the
// EMAIL_DKIM_PARSE precompile cares about, plus the canonicalized content
// that header was computed over.
type DKIMSignature struct {
	Selector  string // s=
	SDID      string // d=
	Signature []byte // b=, base64-decoded
	Message   []byte // canonicalized signed headers + body
}

// Message is the subset of a parsed email the precompile needs.
type Message struct {
	Subject string
	From    string // raw From header value, not yet narrowed to a bare address
	DKIM    []DKIMSignature
}

// Parse reads a raw email and extracts its Subject, From, and DKIM-Signature
// headers. It reports an error if the message cannot be parsed as RFC 5322
// or carries no DKIM-Signature header at all.
func Parse(raw []byte) (*Message, error) {
	netMsg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(netMsg.Body)
	if err != nil {
		return nil, err
	}

	rawSigs := netMsg.Header["Dkim-Signature"]
	if len(rawSigs) == 0 {
		return nil, errors.New("message carries no DKIM-Signature header")
	}

	msg := &Message{
		Subject: netMsg.Header.Get("Subject"),
		From:    netMsg.Header.Get("From"),
	}
	for _, raw := range rawSigs {
		tags := parseTagList(raw)
		sig, err := decodeSignatureTag(tags["b"])
		if err != nil {
			return nil, err
		}
		msg.DKIM = append(msg.DKIM, DKIMSignature{
			Selector:  tags["s"],
			SDID:      tags["d"],
			Signature: sig,
			Message:   canonicalize(netMsg.Header, body, tags, raw),
		})
	}
	return msg, nil
}

// FromAddress narrows a raw From header value down to the bare mailbox
// address it carries, discarding any display name.
func FromAddress(raw string) (string, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// parseTagList parses a DKIM-Signature value ("v=1; a=rsa-sha256; d=...")
// into its tag/value map per RFC 6376 section 3.2. Unknown tags are kept
// too; callers pick out what they need.
func parseTagList(value string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Join(strings.Fields(kv[1]), "")
		tags[key] = val
	}
	return tags
}

func decodeSignatureTag(b string) ([]byte, error) {
	if b == "" {
		return nil, errors.New("DKIM-Signature missing b= tag")
	}
	return base64Decode(b)
}

// canonicalize rebuilds the content a DKIM signer would have hashed: the
// headers named in h=, each as "Name: value\r\n" in the order listed, the
// DKIM-Signature header itself with its b= tag emptied, and the body with
// trailing blank lines trimmed and CRLF line endings enforced. Both the
// header and body canonicalizations here follow RFC 6376's "simple" mode.
func canonicalize(header mail.Header, body []byte, tags map[string]string, sigHeaderValue string) []byte {
	var buf strings.Builder

	for _, name := range strings.Split(tags["h"], ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(header.Get(name))
		buf.WriteString("\r\n")
	}

	signedSig := strings.Replace(sigHeaderValue, "b="+tags["b"], "b=", 1)
	buf.WriteString("DKIM-Signature: ")
	buf.WriteString(signedSig)

	buf.WriteString("\r\n\r\n")
	buf.WriteString(canonicalizeBody(body))
	return []byte(buf.String())
}

func canonicalizeBody(body []byte) string {
	normalized := strings.ReplaceAll(string(body), "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "\r\n"
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// base64Decode decodes a DKIM b= tag value, which may arrive without its
// trailing '=' padding since some MTAs strip it when folding the header.
func base64Decode(s string) ([]byte, error) {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}
