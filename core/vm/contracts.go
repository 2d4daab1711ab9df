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

// Package vm implements the native precompiled contract set: a fixed
// table of routines invocable from EVM bytecode at reserved addresses.
// Every precompile is a pure function of its input bytes and a caller
// supplied gas budget; none of them touch state, storage, or the clock.
package vm

import (
	"crypto/sha256"
	"errors"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nexusvm/coreth-precompiles/internal/memo"
	"github.com/nexusvm/coreth-precompiles/internal/metrics"
	"github.com/nexusvm/coreth-precompiles/internal/pubkeycache"
	"github.com/nexusvm/coreth-precompiles/params"
)

// ExitStatus is the outcome of a precompile call.
type ExitStatus int

const (
	// ExitReturned is a successful call. The output may still be a soft
	// failure sentinel (e.g. empty bytes for ECRECOVER); callers branch
	// on the output, not on a separate error channel.
	ExitReturned ExitStatus = iota
	// ExitOutOfGas means the supplied budget could not cover the
	// precharged cost, or the cost computation itself overflowed.
	ExitOutOfGas
	// ExitOther is a structured input-parsing failure. Its message is
	// useful for logging but carries no consensus meaning beyond
	// "this call did not return".
	ExitOther
)

func (s ExitStatus) String() string {
	switch s {
	case ExitReturned:
		return "returned"
	case ExitOutOfGas:
		return "out-of-gas"
	case ExitOther:
		return "other"
	default:
		return "unknown"
	}
}

// CallContext carries the EVM call frame a precompile was invoked from.
// None of the precompiles in this package inspect it; it exists so the
// PrecompiledContract interface matches what the EVM interpreter actually
// has on hand at the call site.
type CallContext struct {
	Caller  common.Address
	Address common.Address
	Value   *big.Int
}

// PrecompileOutput is what a precompile call returns to the EVM. Logs is
// always empty: precompiles never emit events.
type PrecompileOutput struct {
	Status  ExitStatus
	GasUsed uint64
	Output  []byte
	Logs    []common.Hash
	Err     error
}

// PrecompiledContract is the interface every address in a PrecompileSet's
// table satisfies.
type PrecompiledContract interface {
	Run(input []byte, gasBudget *uint64, ctx *CallContext, isStatic bool) *PrecompileOutput
}

// LinearRunFunc is the primitive a LinearCost contract wraps: given the
// input and its precharged cost, produce the output bytes or fail.
// Implementations must not look at or adjust gas; LinearCost is the only
// place gas is charged.
type LinearRunFunc func(input []byte, cost uint64) ([]byte, error)

// linearCost turns a LinearRunFunc into a full PrecompiledContract by
// precharging base + word*ceil(len/32) gas before running it.
type linearCost struct {
	schedule params.CostSchedule
	run      LinearRunFunc
}

// NewLinearCost adapts run into a PrecompiledContract priced under the
// given schedule. This is the only component in the package that charges
// gas; every standard and non-standard precompile here is built on it.
func NewLinearCost(schedule params.CostSchedule, run LinearRunFunc) PrecompiledContract {
	return &linearCost{schedule: schedule, run: run}
}

func (c *linearCost) Run(input []byte, gasBudget *uint64, _ *CallContext, _ bool) *PrecompileOutput {
	cost, ok := linearGas(c.schedule.Base, c.schedule.Word, uint64(len(input)))
	if !ok {
		return &PrecompileOutput{Status: ExitOutOfGas}
	}
	if gasBudget != nil && cost > *gasBudget {
		return &PrecompileOutput{Status: ExitOutOfGas}
	}

	output, err := c.run(input, cost)
	if err != nil {
		return &PrecompileOutput{Status: ExitOther, GasUsed: cost, Err: err}
	}
	return &PrecompileOutput{Status: ExitReturned, GasUsed: cost, Output: output}
}

// linearGas computes base + word*ceil(len/32), saturating the len+31 step
// and reporting overflow anywhere in the computation instead of wrapping.
func linearGas(base, word, length uint64) (uint64, bool) {
	var lenPlus31 uint64
	if length > math.MaxUint64-31 {
		lenPlus31 = math.MaxUint64
	} else {
		lenPlus31 = length + 31
	}
	words := lenPlus31 / 32

	cost := new(big.Int).Mul(new(big.Int).SetUint64(words), new(big.Int).SetUint64(word))
	cost.Add(cost, new(big.Int).SetUint64(base))
	if !cost.IsUint64() {
		return 0, false
	}
	return cost.Uint64(), true
}

// unimplemented is the placeholder for addresses the dispatcher recognizes
// but has no routine for (0x03, 0x04, 0x05, 0x0400, 0x0401). Source used
// todo!() here; returning a typed failure avoids taking down the host
// process over a reserved-but-missing precompile.
type unimplemented struct{}

func (unimplemented) Run(_ []byte, _ *uint64, _ *CallContext, _ bool) *PrecompileOutput {
	return &PrecompileOutput{Status: ExitOther, Err: errors.New("unimplemented")}
}

// Reserved precompile addresses, 20 bytes big-endian with the low bits
// shown in the name.
var (
	AddrECRecover  = common.BytesToAddress([]byte{0x01})
	AddrSha256     = common.BytesToAddress([]byte{0x02})
	AddrRipemd160  = common.BytesToAddress([]byte{0x03})
	AddrIdentity   = common.BytesToAddress([]byte{0x04})
	AddrModExp     = common.BytesToAddress([]byte{0x05})
	AddrCustom0400 = common.BytesToAddress([]byte{0x04, 0x00})
	AddrCustom0401 = common.BytesToAddress([]byte{0x04, 0x01})
	AddrRsa        = common.BytesToAddress([]byte{0xf4})
	// AddrEmailDkim is not fixed by any upstream source; the reference
	// implementation never wires EMAIL_DKIM_PARSE into its dispatch
	// table at all. 0x0402 continues the 0x0400/0x0401 custom-precompile
	// block immediately after Axon's reserved pair.
	AddrEmailDkim = common.BytesToAddress([]byte{0x04, 0x02})
)

// PrecompileSet dispatches a 20-byte address to its precompile. It is
// built once from a GasConfig and never mutated afterward.
type PrecompileSet struct {
	contracts map[common.Address]PrecompiledContract
	metrics   *metrics.Registry
}

// Option configures optional, non-consensus-affecting behavior of a
// PrecompileSet: metrics and result memoization. Neither changes any
// precompile's output; both can be omitted with no change in behavior.
type Option func(*precompileSetConfig)

type precompileSetConfig struct {
	metrics  *metrics.Registry
	memoSize int
}

// WithMetrics reports call counts and gas-used histograms to reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *precompileSetConfig) { c.metrics = reg }
}

// WithMemoization wraps every precompile's primitive routine in a cache
// keyed on (address, input), sized to roughly maxBytes of working set.
// It is sound only because every precompile here is a pure function of
// its input; it must not be used if that ever stops being true.
func WithMemoization(maxBytes int) Option {
	return func(c *precompileSetConfig) { c.memoSize = maxBytes }
}

// NewPrecompileSet builds the dispatcher for the precompile addresses this
// package implements. cfg overrides the default gas schedules; pass the
// zero value to use the defaults everywhere.
func NewPrecompileSet(cfg params.GasConfig, opts ...Option) *PrecompileSet {
	var oc precompileSetConfig
	for _, opt := range opts {
		opt(&oc)
	}

	ecrecover, sha256Run, rsaRun, dkim := runECRecover, runSha256, newRsaRunner(pubkeycache.New(0)), runEmailDkimParse
	if oc.memoSize > 0 {
		cache := memo.New(oc.memoSize)
		ecrecover = cache.Wrap(AddrECRecover, ecrecover)
		sha256Run = cache.Wrap(AddrSha256, sha256Run)
		rsaRun = cache.Wrap(AddrRsa, rsaRun)
		dkim = cache.Wrap(AddrEmailDkim, dkim)
	}

	return &PrecompileSet{
		metrics: oc.metrics,
		contracts: map[common.Address]PrecompiledContract{
			AddrECRecover:  NewLinearCost(cfg.ECRecoverSchedule(), ecrecover),
			AddrSha256:     NewLinearCost(cfg.Sha256Schedule(), sha256Run),
			AddrRipemd160:  unimplemented{},
			AddrIdentity:   unimplemented{},
			AddrModExp:     unimplemented{},
			AddrCustom0400: unimplemented{},
			AddrCustom0401: unimplemented{},
			AddrRsa:        NewLinearCost(cfg.RsaSchedule(), rsaRun),
			AddrEmailDkim:  NewLinearCost(cfg.EmailDkimSchedule(), dkim),
		},
	}
}

// IsPrecompile reports whether addr names a precompile in this set.
func (s *PrecompileSet) IsPrecompile(addr common.Address) bool {
	_, ok := s.contracts[addr]
	return ok
}

// Execute runs the precompile at addr, or returns nil if addr is not in
// the set. The EVM interpreter is expected to treat a nil result as "not
// a precompile call" and fall through to ordinary contract execution.
func (s *PrecompileSet) Execute(addr common.Address, input []byte, gasBudget *uint64, ctx *CallContext, isStatic bool) *PrecompileOutput {
	contract, ok := s.contracts[addr]
	if !ok {
		s.metrics.Observe(addr.Hex(), "not-found", 0)
		return nil
	}
	out := contract.Run(input, gasBudget, ctx, isStatic)
	if out.Err != nil {
		log.Debug("precompile call failed", "address", addr, "status", out.Status, "err", out.Err)
	} else {
		log.Trace("precompile call", "address", addr, "status", out.Status, "gasUsed", out.GasUsed, "outputLen", len(out.Output))
	}
	s.metrics.Observe(addr.Hex(), out.Status.String(), out.GasUsed)
	return out
}

// ECRECOVER, address 0x01. Recovers the 20-byte address that produced a
// secp256k1 signature over a 32-byte hash.
const ecRecoverInputLength = 128

func runECRecover(input []byte, _ uint64) ([]byte, error) {
	switch {
	case len(input) > ecRecoverInputLength:
		input = input[:ecRecoverInputLength]
	case len(input) < ecRecoverInputLength:
		input = common.RightPadBytes(input, ecRecoverInputLength)
	}

	hash := input[0:32]
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	var recID byte
	switch v := input[63]; v {
	case 27, 28:
		recID = v - 27
	case 0, 1:
		recID = v
	default:
		return []byte{}, nil
	}

	if !allZero(input[32:63]) || !crypto.ValidateSignatureValues(recID, r, s, false) {
		return []byte{}, nil
	}

	sig := make([]byte, 65)
	copy(sig[:32], input[64:96])
	copy(sig[32:64], input[96:128])
	sig[64] = recID

	pubKey, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return []byte{}, nil
	}
	return common.LeftPadBytes(crypto.Keccak256(pubKey[1:])[12:], 32), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// SHA256, address 0x02.
func runSha256(input []byte, _ uint64) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}
