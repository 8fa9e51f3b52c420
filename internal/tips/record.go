package tips

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	discriminatorLength = 8
	publicKeyLength     = 32
	u64Length           = 8
	i64Length           = 8
	u8Length            = 1
	stringLengthPrefix  = 4
)

// RecordSpace is the fixed byte capacity of every stored tip account.
const RecordSpace = discriminatorLength +
	publicKeyLength +
	publicKeyLength +
	u64Length +
	stringLengthPrefix + MaxMessageLength +
	i64Length +
	u8Length

// TipAccountDiscriminator prefixes every encoded record.
var TipAccountDiscriminator = accountDiscriminator("TipAccount")

func accountDiscriminator(name string) [discriminatorLength]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var discriminator [discriminatorLength]byte
	copy(discriminator[:], sum[:discriminatorLength])
	return discriminator
}

// TipRecord is the immutable annotation written once per successful tip.
type TipRecord struct {
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64
	Message   string
	Timestamp int64
	Nonce     uint8
}

// EncodeRecord packs the record behind its discriminator and zero-pads it to RecordSpace.
func EncodeRecord(record TipRecord) ([]byte, error) {
	if len(record.Message) > MaxMessageLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(record.Message))
	}

	buffer := bytes.NewBuffer(make([]byte, 0, RecordSpace))
	encoder := bin.NewBorshEncoder(buffer)
	if err := encoder.WriteBytes(TipAccountDiscriminator[:], false); err != nil {
		return nil, err
	}
	fields := []any{
		record.Sender,
		record.Recipient,
		record.Amount,
		record.Message,
		record.Timestamp,
		record.Nonce,
	}
	for _, field := range fields {
		if err := encoder.Encode(field); err != nil {
			return nil, err
		}
	}

	data := make([]byte, RecordSpace)
	copy(data, buffer.Bytes())
	return data, nil
}

// DecodeRecord parses a stored tip account, ignoring the zero padding.
func DecodeRecord(data []byte) (TipRecord, error) {
	if len(data) != RecordSpace {
		return TipRecord{}, fmt.Errorf("tips: record size %d, want %d", len(data), RecordSpace)
	}

	decoder := bin.NewBorshDecoder(data)
	discriminator, err := decoder.ReadTypeID()
	if err != nil {
		return TipRecord{}, err
	}
	if !discriminator.Equal(TipAccountDiscriminator[:]) {
		return TipRecord{}, fmt.Errorf("tips: unexpected account discriminator %x", discriminator[:])
	}

	var record TipRecord
	targets := []any{
		&record.Sender,
		&record.Recipient,
		&record.Amount,
		&record.Message,
		&record.Timestamp,
		&record.Nonce,
	}
	for _, target := range targets {
		if err := decoder.Decode(target); err != nil {
			return TipRecord{}, err
		}
	}
	if len(record.Message) > MaxMessageLength {
		return TipRecord{}, fmt.Errorf("%w: stored %d bytes", ErrMessageTooLong, len(record.Message))
	}
	return record, nil
}
