package tips

import "fmt"

// MaxMessageLength bounds a sanitized message in UTF-8 bytes, the unit the record layout reserves.
const MaxMessageLength = 280

// ValidateInputs checks the amount and the already sanitized message.
// Balance is never consulted here; the ledger alone decides whether funds suffice.
func ValidateInputs(amount uint64, sanitizedMessage string) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if sanitizedMessage != "" && len(sanitizedMessage) > MaxMessageLength {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(sanitizedMessage))
	}
	return nil
}
