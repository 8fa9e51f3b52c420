package tips

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	errMissingEnvironment = errors.New("execution environment is required")
	errMissingProgramID   = errors.New("program id is required")
	noOpLogger            = zap.NewNop()
)

// Stage names a step of the send-tip pipeline.
type Stage string

const (
	StageReceived    Stage = "received"
	StageSanitized   Stage = "sanitized"
	StageValidated   Stage = "validated"
	StageTransferred Stage = "transferred"
	StagePersisted   Stage = "persisted"
	StageComplete    Stage = "complete"
)

// Ledger moves lamports between identities. It is the only component allowed
// to decide that a payer lacks funds.
type Ledger interface {
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error
}

// RecordStore creates tip accounts. Create must fail with ErrAlreadyExists when
// the address is occupied and must never overwrite.
type RecordStore interface {
	Create(ctx context.Context, address solana.PublicKey, record TipRecord, data []byte) error
}

// Environment commits a transfer and a record write as one unit.
type Environment interface {
	Atomically(ctx context.Context, fn func(ledger Ledger, records RecordStore) error) error
	LoadRecord(ctx context.Context, address solana.PublicKey) ([]byte, error)
}

// Observer receives pipeline outcomes, typically for metrics.
type Observer interface {
	TipSent(amount uint64)
	TipRejected(reason string)
}

type noOpObserver struct{}

func (noOpObserver) TipSent(uint64)     {}
func (noOpObserver) TipRejected(string) {}

type ServiceConfig struct {
	Environment Environment
	ProgramID   solana.PublicKey
	Clock       func() time.Time
	Logger      *zap.Logger
	Observer    Observer
}

type Service struct {
	env       Environment
	programID solana.PublicKey
	clock     func() time.Time
	logger    *zap.Logger
	observer  Observer
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Environment == nil {
		return nil, newServiceError(opServiceNew, "missing_environment", errMissingEnvironment)
	}
	if cfg.ProgramID.IsZero() {
		return nil, newServiceError(opServiceNew, "missing_program_id", errMissingProgramID)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	observer := cfg.Observer
	if observer == nil {
		observer = noOpObserver{}
	}

	return &Service{
		env:       cfg.Environment,
		programID: cfg.ProgramID,
		clock:     clock,
		logger:    logger,
		observer:  observer,
	}, nil
}

// ProgramID returns the namespace tip addresses are derived under.
func (s *Service) ProgramID() solana.PublicKey {
	return s.programID
}

// SendTipRequest carries the caller-supplied fields. Sender must already be
// authorized by the caller.
type SendTipRequest struct {
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64
	Message   string
	Seed      uint64
}

// Receipt describes a committed tip.
type Receipt struct {
	Address solana.PublicKey
	Seed    uint64
	Record  TipRecord
}

// SendTip sanitizes and validates the request, then transfers the amount and
// writes the tip record inside one atomic unit. No funds move unless
// sanitization and validation pass, and the transfer always precedes the write.
func (s *Service) SendTip(ctx context.Context, request SendTipRequest) (Receipt, error) {
	if s == nil || s.env == nil {
		return Receipt{}, newServiceError(opSendTip, "missing_environment", errMissingEnvironment)
	}
	stage := StageReceived

	if request.Sender.IsZero() || request.Recipient.IsZero() {
		return Receipt{}, s.fail(stage, "invalid_request", ErrInvalidRequest)
	}

	message, err := SanitizeMessage(request.Message)
	if err != nil {
		return Receipt{}, s.fail(stage, "invalid_characters", err)
	}
	stage = StageSanitized

	if err := ValidateInputs(request.Amount, message); err != nil {
		return Receipt{}, s.fail(stage, FailureReason(err), err)
	}
	stage = StageValidated

	address, nonce, err := DeriveTipAddress(s.programID, request.Sender, request.Seed)
	if err != nil {
		return Receipt{}, s.fail(stage, "address_derivation_failed", err)
	}

	record := TipRecord{
		Sender:    request.Sender,
		Recipient: request.Recipient,
		Amount:    request.Amount,
		Message:   message,
		Timestamp: s.clock().UTC().Unix(),
		Nonce:     nonce,
	}
	data, err := EncodeRecord(record)
	if err != nil {
		return Receipt{}, s.fail(stage, FailureReason(err), err)
	}

	err = s.env.Atomically(ctx, func(ledger Ledger, records RecordStore) error {
		if err := ledger.Transfer(ctx, request.Sender, request.Recipient, request.Amount); err != nil {
			return err
		}
		stage = StageTransferred
		if err := records.Create(ctx, address, record, data); err != nil {
			return err
		}
		stage = StagePersisted
		return nil
	})
	if err != nil {
		reason := FailureReason(err)
		if reason == "internal" {
			reason = "commit_failed"
		}
		return Receipt{}, s.fail(stage, reason, err,
			zap.String("address", address.String()),
			zap.Uint64("seed", request.Seed))
	}

	if s.observer != nil {
		s.observer.TipSent(record.Amount)
	}
	s.loggerOrDefault().Info("tip sent",
		zap.String("stage", string(StageComplete)),
		zap.String("address", address.String()),
		zap.String("sender", record.Sender.String()),
		zap.String("recipient", record.Recipient.String()),
		zap.Uint64("amount", record.Amount))

	return Receipt{Address: address, Seed: request.Seed, Record: record}, nil
}

// FetchTip loads and decodes the tip record stored at address.
func (s *Service) FetchTip(ctx context.Context, address solana.PublicKey) (TipRecord, []byte, error) {
	if s == nil || s.env == nil {
		return TipRecord{}, nil, newServiceError(opFetchTip, "missing_environment", errMissingEnvironment)
	}
	data, err := s.env.LoadRecord(ctx, address)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TipRecord{}, nil, newServiceError(opFetchTip, "not_found", err)
		}
		s.logError(opFetchTip, "load_failed", err, zap.String("address", address.String()))
		return TipRecord{}, nil, newServiceError(opFetchTip, "load_failed", err)
	}
	record, err := DecodeRecord(data)
	if err != nil {
		s.logError(opFetchTip, "decode_failed", err, zap.String("address", address.String()))
		return TipRecord{}, nil, newServiceError(opFetchTip, "decode_failed", err)
	}
	return record, data, nil
}

func (s *Service) fail(stage Stage, reason string, err error, fields ...zap.Field) error {
	if s.observer != nil {
		s.observer.TipRejected(reason)
	}
	fields = append(fields, zap.String("stage", string(stage)))
	switch reason {
	case "invalid_amount", "message_too_long", "invalid_characters", "invalid_request",
		"insufficient_funds", "already_exists":
		s.loggerOrDefault().Info("tip rejected",
			append(fields, zap.String("reason", reason), zap.Error(err))...)
	default:
		s.logError(opSendTip, reason, err, fields...)
	}
	return newServiceError(opSendTip, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("tips service error", attrs...)
}
