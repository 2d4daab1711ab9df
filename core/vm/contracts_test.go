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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nexusvm/coreth-precompiles/internal/metrics"
	"github.com/nexusvm/coreth-precompiles/internal/pubkeycache"
	"github.com/nexusvm/coreth-precompiles/params"
)

func testRunRsa(input []byte) ([]byte, error) {
	return newRsaRunner(pubkeycache.New(0))(input, 0)
}

func TestLinearGasExactSchedule(t *testing.T) {
	cost, ok := linearGas(60, 12, 13)
	require.True(t, ok)
	// ceil(13/32) == 1 word
	require.Equal(t, uint64(60+12), cost)
}

func TestLinearGasOverflowReportsNotOk(t *testing.T) {
	_, ok := linearGas(math.MaxUint64, 1, 32)
	require.False(t, ok)
}

func TestLinearCostRunChargesExactCostAndRejectsOverBudget(t *testing.T) {
	c := NewLinearCost(params.CostSchedule{Base: 60, Word: 12}, runSha256)

	input := []byte("Hello, world")
	budget := uint64(72)
	out := c.Run(input, &budget, nil, false)
	require.Equal(t, ExitReturned, out.Status)
	require.Equal(t, uint64(72), out.GasUsed)

	want := sha256.Sum256(input)
	require.Equal(t, want[:], out.Output)

	tooLittle := uint64(71)
	out = c.Run(input, &tooLittle, nil, false)
	require.Equal(t, ExitOutOfGas, out.Status)
}

func TestLinearCostRunWithNilBudgetNeverOutOfGas(t *testing.T) {
	c := NewLinearCost(params.CostSchedule{Base: 3000, Word: 0}, runSha256)
	out := c.Run([]byte("anything"), nil, nil, false)
	require.Equal(t, ExitReturned, out.Status)
}

func TestSha256MatchesStandardLibrary(t *testing.T) {
	input := []byte("Hello, world")
	out, err := runSha256(input, 0)
	require.NoError(t, err)
	want := sha256.Sum256(input)
	require.Equal(t, want[:], out)
}

func ecRecoverInput(hash, r, s []byte, v byte) []byte {
	input := make([]byte, 128)
	copy(input[0:32], hash)
	input[63] = v
	copy(input[64:96], r)
	copy(input[96:128], s)
	return input
}

func TestECRecoverRecoversMatchingSigner(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)

	hash := gethcrypto.Keccak256([]byte("precompile test message"))
	sig, err := gethcrypto.Sign(hash, key)
	require.NoError(t, err)

	input := ecRecoverInput(hash, sig[0:32], sig[32:64], sig[64]+27)
	out, err := runECRecover(input, 0)
	require.NoError(t, err)

	wantAddr := gethcrypto.PubkeyToAddress(key.PublicKey)
	require.Len(t, out, 32)
	require.True(t, allZero(out[:12]))
	require.Equal(t, wantAddr.Bytes(), out[12:])
}

func TestECRecoverAcceptsRawRecoveryID(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)

	hash := gethcrypto.Keccak256([]byte("another message"))
	sig, err := gethcrypto.Sign(hash, key)
	require.NoError(t, err)

	// v passed as the raw 0/1 recovery id, not offset by 27.
	input := ecRecoverInput(hash, sig[0:32], sig[32:64], sig[64])
	out, err := runECRecover(input, 0)
	require.NoError(t, err)

	wantAddr := gethcrypto.PubkeyToAddress(key.PublicKey)
	require.Equal(t, wantAddr.Bytes(), out[12:])
}

func TestECRecoverRejectsMalformedV(t *testing.T) {
	hash := gethcrypto.Keccak256([]byte("x"))
	input := ecRecoverInput(hash, big.NewInt(1).Bytes(), big.NewInt(1).Bytes(), 99)
	out, err := runECRecover(input, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestECRecoverRejectsZeroS(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	hash := gethcrypto.Keccak256([]byte("zero s"))
	sig, err := gethcrypto.Sign(hash, key)
	require.NoError(t, err)

	input := ecRecoverInput(hash, sig[0:32], make([]byte, 32), sig[64]+27)
	out, err := runECRecover(input, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestECRecoverPadsShortInput(t *testing.T) {
	// An input shorter than 128 bytes is right-padded with zeros before
	// being parsed, rather than rejected.
	short := make([]byte, 40)
	out, err := runECRecover(short, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func encodeRsaInput(t *testing.T, e int, n, msg, sig []byte) []byte {
	t.Helper()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(e))

	appendLenPrefixed := func(dst, b []byte) []byte {
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(b)))
		dst = append(dst, l...)
		return append(dst, b...)
	}

	out := append([]byte{}, buf...)
	out = appendLenPrefixed(out, n)
	out = appendLenPrefixed(out, msg)
	out = appendLenPrefixed(out, sig)
	return out
}

func TestRsaVerifySucceedsOnValidSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("Hello, world")
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), msg)
	require.NoError(t, err)

	input := encodeRsaInput(t, priv.PublicKey.E, priv.PublicKey.N.Bytes(), msg, sig)
	out, err := testRunRsa(input)
	require.NoError(t, err)
	require.Equal(t, rsaSuccess, out)
}

func TestRsaVerifyFailsOnTamperedSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("Hello, world")
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), msg)
	require.NoError(t, err)
	sig[len(sig)-1] ^= 0xff

	input := encodeRsaInput(t, priv.PublicKey.E, priv.PublicKey.N.Bytes(), msg, sig)
	out, err := testRunRsa(input)
	require.NoError(t, err)
	require.Equal(t, []byte{rsaFailure}, out)
}

func TestRsaRejectsTruncatedInput(t *testing.T) {
	_, err := testRunRsa([]byte{0, 0, 0})
	require.Error(t, err)
}

func TestRsaRejectsNonPositiveModulus(t *testing.T) {
	input := encodeRsaInput(t, 65537, []byte{0}, []byte("msg"), []byte("sig"))
	_, err := testRunRsa(input)
	require.Error(t, err)
}

func TestPrecompileSetRecognizesDocumentedAddresses(t *testing.T) {
	set := NewPrecompileSet(params.GasConfig{})

	implemented := []common.Address{AddrECRecover, AddrSha256, AddrRsa, AddrEmailDkim}
	for _, addr := range implemented {
		require.True(t, set.IsPrecompile(addr), "expected %s to be recognized", addr)
	}

	reserved := []common.Address{AddrRipemd160, AddrIdentity, AddrModExp, AddrCustom0400, AddrCustom0401}
	for _, addr := range reserved {
		require.True(t, set.IsPrecompile(addr), "expected reserved %s to be recognized", addr)
		budget := uint64(1_000_000)
		out := set.Execute(addr, nil, &budget, nil, false)
		require.Equal(t, ExitOther, out.Status)
		require.Error(t, out.Err)
	}
}

func TestPrecompileSetExecuteReturnsNilForUnknownAddress(t *testing.T) {
	set := NewPrecompileSet(params.GasConfig{})
	unknown := common.BytesToAddress([]byte{0xff, 0xff})
	require.False(t, set.IsPrecompile(unknown))

	budget := uint64(1_000_000)
	out := set.Execute(unknown, nil, &budget, nil, false)
	require.Nil(t, out)
}

func TestPrecompileSetExecuteObservesUnknownAddress(t *testing.T) {
	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)
	set := NewPrecompileSet(params.GasConfig{}, WithMetrics(reg))
	unknown := common.BytesToAddress([]byte{0xff, 0xff})

	budget := uint64(1_000_000)
	out := set.Execute(unknown, nil, &budget, nil, false)
	require.Nil(t, out)
	// Execute must not panic when an unrecognized address is observed,
	// and must route it through the same metrics registry as a
	// recognized call rather than skipping it silently.
	families, err := promReg.Gather()
	require.NoError(t, err)
	var notFound float64
	for _, mf := range families {
		if mf.GetName() != "precompile_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == "not-found" {
					notFound += m.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, float64(1), notFound)
}

func TestPrecompileSetExecuteDispatchesSha256(t *testing.T) {
	set := NewPrecompileSet(params.GasConfig{})
	input := []byte("Hello, world")
	budget := uint64(72)

	out := set.Execute(AddrSha256, input, &budget, &CallContext{}, false)
	require.NotNil(t, out)
	require.Equal(t, ExitReturned, out.Status)
	require.Equal(t, uint64(72), out.GasUsed)

	want := sha256.Sum256(input)
	require.Equal(t, want[:], out.Output)
}

func TestPrecompileSetHonorsConfiguredSchedule(t *testing.T) {
	cfg := params.GasConfig{Sha256: &params.CostSchedule{Base: 100, Word: 20}}
	set := NewPrecompileSet(cfg)
	budget := uint64(120)

	out := set.Execute(AddrSha256, []byte("short"), &budget, nil, false)
	require.Equal(t, ExitReturned, out.Status)
	require.Equal(t, uint64(120), out.GasUsed)
}

func TestPrecompileSetWithMemoizationStillReturnsCorrectOutput(t *testing.T) {
	set := NewPrecompileSet(params.GasConfig{}, WithMemoization(1<<20))
	input := []byte("Hello, world")
	budget := uint64(72)

	first := set.Execute(AddrSha256, input, &budget, nil, false)
	second := set.Execute(AddrSha256, input, &budget, nil, false)
	require.Equal(t, first.Output, second.Output)

	want := sha256.Sum256(input)
	require.Equal(t, want[:], second.Output)
}

func TestPrecompileSetWithMetricsDoesNotPanic(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	set := NewPrecompileSet(params.GasConfig{}, WithMetrics(reg))
	budget := uint64(72)
	out := set.Execute(AddrSha256, []byte("Hello, world"), &budget, nil, false)
	require.Equal(t, ExitReturned, out.Status)
}
