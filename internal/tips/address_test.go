package tips

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgramID = solana.MustPublicKeyFromBase58("7sLJJYECWzm1iUE2zEPkD7XtdcUp9qHx3HQPoiUGaicY")

func TestDeriveTipAddressMatchesProgramAddressSearch(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	seed := uint64(1_700_000_000_123)

	address, nonce, err := DeriveTipAddress(testProgramID, sender, seed)
	require.NoError(t, err)

	seedBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seedBytes, seed)
	expected, expectedNonce, err := solana.FindProgramAddress(
		[][]byte{[]byte("tip"), sender.Bytes(), seedBytes},
		testProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, expected, address)
	assert.Equal(t, expectedNonce, nonce)
	assert.False(t, address.IsOnCurve())
}

func TestDeriveTipAddressIsDeterministic(t *testing.T) {
	sender := solana.NewWallet().PublicKey()

	first, firstNonce, err := DeriveTipAddress(testProgramID, sender, 7)
	require.NoError(t, err)
	second, secondNonce, err := DeriveTipAddress(testProgramID, sender, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstNonce, secondNonce)
}

func TestDeriveTipAddressSeparatesSeedsAndSenders(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	base, _, err := DeriveTipAddress(testProgramID, sender, 1)
	require.NoError(t, err)
	otherSeed, _, err := DeriveTipAddress(testProgramID, sender, 2)
	require.NoError(t, err)
	otherSender, _, err := DeriveTipAddress(testProgramID, other, 1)
	require.NoError(t, err)

	assert.NotEqual(t, base, otherSeed)
	assert.NotEqual(t, base, otherSender)
}

func TestVerifyTipAddress(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	address, nonce, err := DeriveTipAddress(testProgramID, sender, 99)
	require.NoError(t, err)

	assert.True(t, VerifyTipAddress(testProgramID, sender, 99, nonce, address))
	assert.False(t, VerifyTipAddress(testProgramID, sender, 100, nonce, address))
	assert.False(t, VerifyTipAddress(testProgramID, solana.NewWallet().PublicKey(), 99, nonce, address))
}
