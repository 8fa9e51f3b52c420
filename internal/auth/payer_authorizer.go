package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const canonicalTipPrefix = "tipjar:send_tip"

var (
	// ErrInvalidSignature indicates a payer signature that is malformed or does not verify.
	ErrInvalidSignature = errors.New("auth: invalid payer signature")
	// ErrMissingSignature indicates a tip request without a payer signature.
	ErrMissingSignature = errors.New("auth: payer signature is required")
)

// TipIntent is the set of fields the payer signs.
type TipIntent struct {
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64
	Seed      uint64
	Message   string
}

// CanonicalTipMessage renders the byte string a payer signs to authorize a tip.
// The message is signed as submitted, before sanitization.
func CanonicalTipMessage(intent TipIntent) []byte {
	var builder strings.Builder
	builder.WriteString(canonicalTipPrefix)
	builder.WriteByte('\n')
	builder.WriteString(intent.Sender.String())
	builder.WriteByte('\n')
	builder.WriteString(intent.Recipient.String())
	builder.WriteByte('\n')
	builder.WriteString(strconv.FormatUint(intent.Amount, 10))
	builder.WriteByte('\n')
	builder.WriteString(strconv.FormatUint(intent.Seed, 10))
	builder.WriteByte('\n')
	builder.WriteString(intent.Message)
	return []byte(builder.String())
}

// PayerAuthorizer checks that the sender's ed25519 key signed a tip intent.
type PayerAuthorizer struct{}

// NewPayerAuthorizer constructs a PayerAuthorizer.
func NewPayerAuthorizer() *PayerAuthorizer {
	return &PayerAuthorizer{}
}

// Authorize verifies the base58 signature against the canonical form of intent.
func (a *PayerAuthorizer) Authorize(intent TipIntent, signatureBase58 string) error {
	encoded := strings.TrimSpace(signatureBase58)
	if encoded == "" {
		return ErrMissingSignature
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var signature solana.Signature
	if len(raw) != len(signature) {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, len(signature), len(raw))
	}
	copy(signature[:], raw)
	if !signature.Verify(intent.Sender, CanonicalTipMessage(intent)) {
		return ErrInvalidSignature
	}
	return nil
}
