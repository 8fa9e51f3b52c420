package tips

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const tipSeedPrefix = "tip"

func tipSeeds(sender solana.PublicKey, seed uint64) [][]byte {
	seedBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seedBytes, seed)
	return [][]byte{[]byte(tipSeedPrefix), sender.Bytes(), seedBytes}
}

// DeriveTipAddress returns the program-derived address of the tip record for
// (sender, seed) together with the highest nonce that yields an off-curve point.
func DeriveTipAddress(programID, sender solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	seeds := tipSeeds(sender, seed)
	for nonce := 255; nonce >= 0; nonce-- {
		candidate := append(seeds, []byte{uint8(nonce)})
		address, err := solana.CreateProgramAddress(candidate, programID)
		if err == nil {
			return address, uint8(nonce), nil
		}
	}
	return solana.PublicKey{}, 0, fmt.Errorf("%w: no viable nonce for seed %d", ErrInvalidRequest, seed)
}

// VerifyTipAddress reports whether address is the tip record location for
// (sender, seed) under the stored nonce.
func VerifyTipAddress(programID, sender solana.PublicKey, seed uint64, nonce uint8, address solana.PublicKey) bool {
	candidate := append(tipSeeds(sender, seed), []byte{nonce})
	derived, err := solana.CreateProgramAddress(candidate, programID)
	if err != nil {
		return false
	}
	return derived.Equals(address)
}
