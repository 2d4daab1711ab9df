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

package params

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CostSchedule is a precompile's linear gas pricing: cost = Base +
// Word*ceil(len(input)/32).
type CostSchedule struct {
	Base uint64 `json:"base" yaml:"base"`
	Word uint64 `json:"word" yaml:"word"`
}

// Default cost schedules for the precompile set. ECRecoverGas, Sha256Gas
// and RsaGas mirror the values Ethereum mainnet and Axon charge for their
// respective precompiles; EmailDkimGas charges the same flat 3000 gas as
// RSA verification since both do a bounded amount of parsing work per call.
var (
	ECRecoverGas = CostSchedule{Base: 3000, Word: 0}
	Sha256Gas    = CostSchedule{Base: 60, Word: 12}
	RsaGas       = CostSchedule{Base: 3000, Word: 0}
	EmailDkimGas = CostSchedule{Base: 3000, Word: 0}
)

// GasConfig lets a host chain override the default cost schedules, e.g.
// from a genesis or network-upgrade document. It is decoded once, before
// a PrecompileSet is constructed; nothing reads it afterwards, so the
// resulting precompiles see an immutable schedule for their lifetime.
type GasConfig struct {
	ECRecover *CostSchedule `json:"ecrecoverGas,omitempty" yaml:"ecrecoverGas,omitempty"`
	Sha256    *CostSchedule `json:"sha256Gas,omitempty" yaml:"sha256Gas,omitempty"`
	Rsa       *CostSchedule `json:"rsaGas,omitempty" yaml:"rsaGas,omitempty"`
	EmailDkim *CostSchedule `json:"emailDkimGas,omitempty" yaml:"emailDkimGas,omitempty"`
}

// DecodeGasConfig parses a JSON-encoded GasConfig. An empty document
// decodes to the zero GasConfig, which resolves entirely to the defaults
// above.
func DecodeGasConfig(data []byte) (GasConfig, error) {
	var cfg GasConfig
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GasConfig{}, fmt.Errorf("decode gas config: %w", err)
	}
	return cfg, nil
}

// ECRecoverSchedule returns the configured ECRECOVER schedule, or the
// default if unset.
func (c GasConfig) ECRecoverSchedule() CostSchedule {
	return orDefault(c.ECRecover, ECRecoverGas)
}

// Sha256Schedule returns the configured SHA256 schedule, or the default if
// unset.
func (c GasConfig) Sha256Schedule() CostSchedule {
	return orDefault(c.Sha256, Sha256Gas)
}

// RsaSchedule returns the configured RSA schedule, or the default if unset.
func (c GasConfig) RsaSchedule() CostSchedule {
	return orDefault(c.Rsa, RsaGas)
}

// EmailDkimSchedule returns the configured EMAIL_DKIM_PARSE schedule, or
// the default if unset.
func (c GasConfig) EmailDkimSchedule() CostSchedule {
	return orDefault(c.EmailDkim, EmailDkimGas)
}

// DecodeGasConfigFile decodes a GasConfig from path, choosing JSON or YAML
// by its extension (".yaml"/".yml" for YAML, anything else for JSON). A
// genesis or network-upgrade document on disk is the expected source of
// this override, read once at node startup.
func DecodeGasConfigFile(path string, data []byte) (GasConfig, error) {
	var cfg GasConfig
	if len(data) == 0 {
		return cfg, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return GasConfig{}, fmt.Errorf("decode gas config: %w", err)
		}
		return cfg, nil
	default:
		return DecodeGasConfig(data)
	}
}

func orDefault(override *CostSchedule, def CostSchedule) CostSchedule {
	if override != nil {
		return *override
	}
	return def
}
