package auth

import (
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signIntent(t *testing.T, wallet *solana.Wallet, intent TipIntent) string {
	t.Helper()
	signature, err := wallet.PrivateKey.Sign(CanonicalTipMessage(intent))
	require.NoError(t, err)
	return signature.String()
}

func TestCanonicalTipMessageLayout(t *testing.T) {
	sender := solana.MustPublicKeyFromBase58("7sLJJYECWzm1iUE2zEPkD7XtdcUp9qHx3HQPoiUGaicY")
	recipient := solana.SystemProgramID
	message := CanonicalTipMessage(TipIntent{
		Sender:    sender,
		Recipient: recipient,
		Amount:    1500,
		Seed:      42,
		Message:   "thanks\nfriend",
	})

	lines := strings.SplitN(string(message), "\n", 6)
	require.Len(t, lines, 6)
	assert.Equal(t, "tipjar:send_tip", lines[0])
	assert.Equal(t, sender.String(), lines[1])
	assert.Equal(t, recipient.String(), lines[2])
	assert.Equal(t, "1500", lines[3])
	assert.Equal(t, "42", lines[4])
	assert.Equal(t, "thanks\nfriend", lines[5])
}

func TestPayerAuthorizerAcceptsSenderSignature(t *testing.T) {
	wallet := solana.NewWallet()
	intent := TipIntent{
		Sender:    wallet.PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Amount:    250,
		Seed:      7,
		Message:   "great job",
	}

	authorizer := NewPayerAuthorizer()
	assert.NoError(t, authorizer.Authorize(intent, signIntent(t, wallet, intent)))
}

func TestPayerAuthorizerRejectsTamperedIntent(t *testing.T) {
	wallet := solana.NewWallet()
	intent := TipIntent{
		Sender:    wallet.PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Amount:    250,
		Seed:      7,
		Message:   "great job",
	}
	signature := signIntent(t, wallet, intent)

	tampered := intent
	tampered.Amount = 2500
	authorizer := NewPayerAuthorizer()
	assert.ErrorIs(t, authorizer.Authorize(tampered, signature), ErrInvalidSignature)
}

func TestPayerAuthorizerRejectsForeignSigner(t *testing.T) {
	sender := solana.NewWallet()
	intruder := solana.NewWallet()
	intent := TipIntent{
		Sender:    sender.PublicKey(),
		Recipient: solana.NewWallet().PublicKey(),
		Amount:    1,
		Seed:      1,
	}

	authorizer := NewPayerAuthorizer()
	assert.ErrorIs(t, authorizer.Authorize(intent, signIntent(t, intruder, intent)), ErrInvalidSignature)
}

func TestPayerAuthorizerRejectsMalformedSignatures(t *testing.T) {
	intent := TipIntent{Sender: solana.NewWallet().PublicKey(), Amount: 1}
	authorizer := NewPayerAuthorizer()

	testCases := []struct {
		name      string
		signature string
		expected  error
	}{
		{name: "empty", signature: "  ", expected: ErrMissingSignature},
		{name: "not-base58", signature: "0OIl", expected: ErrInvalidSignature},
		{name: "short", signature: base58.Encode([]byte{1, 2, 3}), expected: ErrInvalidSignature},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.ErrorIs(t, authorizer.Authorize(intent, testCase.signature), testCase.expected)
		})
	}
}
