package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/tips"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidCredit indicates a zero credit or one that would overflow the stored balance.
	ErrInvalidCredit = errors.New("ledger: invalid credit")
	// ErrZeroTransfer indicates a transfer of zero lamports.
	ErrZeroTransfer = errors.New("ledger: transfer amount must be positive")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// maxBalance keeps balances representable in SQLite's signed integer column.
const maxBalance = uint64(math.MaxInt64)

type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store is the SQLite-backed execution environment: it owns balances and tip
// accounts and commits a transfer together with its record write.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Atomically runs fn inside one database transaction. Any error returned by fn
// rolls back every transfer and record write it performed.
func (s *Store) Atomically(ctx context.Context, fn func(ledger tips.Ledger, records tips.RecordStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit := &unitOfWork{tx: tx, clock: s.clock, idProvider: s.idProvider}
		return fn(unit, unit)
	})
}

// LoadRecord returns the raw tip account stored at address.
func (s *Store) LoadRecord(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	var row TipAccountRow
	err := s.db.WithContext(ctx).
		Where("address = ?", address.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", tips.ErrRecordNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

// Balance returns the lamports held by identity; unknown identities hold zero.
func (s *Store) Balance(ctx context.Context, identity solana.PublicKey) (uint64, error) {
	var account Account
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity.String()).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Lamports, nil
}

// Credit mints lamports into identity and returns the resulting balance.
func (s *Store) Credit(ctx context.Context, identity solana.PublicKey, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidCredit)
	}
	var balance uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit := &unitOfWork{tx: tx, clock: s.clock, idProvider: s.idProvider}
		updated, err := unit.credit(identity, amount)
		if err != nil {
			return err
		}
		balance = updated
		return unit.journal(solana.PublicKey{}, identity, amount, entryKindCredit)
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidCredit) {
			s.logger.Error("ledger credit failed",
				zap.String("identity", identity.String()),
				zap.Uint64("amount", amount),
				zap.Error(err))
		}
		return 0, err
	}
	s.logger.Info("ledger credited",
		zap.String("identity", identity.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", balance))
	return balance, nil
}

type unitOfWork struct {
	tx         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
}

// Transfer moves amount from one identity to another. A missing or short payer
// account fails with tips.ErrInsufficientFunds.
func (u *unitOfWork) Transfer(_ context.Context, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return ErrZeroTransfer
	}

	payer, err := u.lockAccount(from)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: balance 0, need %d", tips.ErrInsufficientFunds, amount)
	}
	if err != nil {
		return err
	}
	if payer.Lamports < amount {
		return fmt.Errorf("%w: balance %d, need %d", tips.ErrInsufficientFunds, payer.Lamports, amount)
	}

	if !from.Equals(to) {
		if err := u.setBalance(from, payer.Lamports-amount); err != nil {
			return err
		}
		if _, err := u.credit(to, amount); err != nil {
			return err
		}
	}
	return u.journal(from, to, amount, entryKindTransfer)
}

// Create writes a tip account; an occupied address is never overwritten.
func (u *unitOfWork) Create(_ context.Context, address solana.PublicKey, record tips.TipRecord, data []byte) error {
	var existing TipAccountRow
	err := u.tx.Select("address").
		Where("address = ?", address.String()).
		Take(&existing).Error
	if err == nil {
		return fmt.Errorf("%w: %s", tips.ErrAlreadyExists, address)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := TipAccountRow{
		Address:           address.String(),
		SenderIdentity:    record.Sender.String(),
		RecipientIdentity: record.Recipient.String(),
		Nonce:             record.Nonce,
		Data:              data,
		CreatedAtSeconds:  u.clock().UTC().Unix(),
	}
	if err := u.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", tips.ErrAlreadyExists, address)
		}
		return err
	}
	return nil
}

func (u *unitOfWork) lockAccount(identity solana.PublicKey) (Account, error) {
	var account Account
	err := u.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("identity = ?", identity.String()).
		Take(&account).Error
	return account, err
}

func (u *unitOfWork) setBalance(identity solana.PublicKey, lamports uint64) error {
	return u.tx.Model(&Account{}).
		Where("identity = ?", identity.String()).
		Updates(map[string]any{
			"lamports":     lamports,
			"updated_at_s": u.clock().UTC().Unix(),
		}).Error
}

func (u *unitOfWork) credit(identity solana.PublicKey, amount uint64) (uint64, error) {
	account, err := u.lockAccount(identity)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if amount > maxBalance {
			return 0, fmt.Errorf("%w: balance would exceed %d", ErrInvalidCredit, maxBalance)
		}
		account = Account{
			Identity:         identity.String(),
			Lamports:         amount,
			UpdatedAtSeconds: u.clock().UTC().Unix(),
		}
		if err := u.tx.Create(&account).Error; err != nil {
			return 0, err
		}
		return account.Lamports, nil
	}
	if err != nil {
		return 0, err
	}
	if amount > maxBalance-account.Lamports {
		return 0, fmt.Errorf("%w: balance would exceed %d", ErrInvalidCredit, maxBalance)
	}
	updated := account.Lamports + amount
	if err := u.setBalance(identity, updated); err != nil {
		return 0, err
	}
	return updated, nil
}

func (u *unitOfWork) journal(from, to solana.PublicKey, amount uint64, kind string) error {
	entryID, err := u.idProvider.NewID()
	if err != nil {
		return err
	}
	return u.tx.Create(&TransferEntry{
		EntryID:          entryID,
		FromIdentity:     from.String(),
		ToIdentity:       to.String(),
		Lamports:         amount,
		Kind:             kind,
		AppliedAtSeconds: u.clock().UTC().Unix(),
	}).Error
}
