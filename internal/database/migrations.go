package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/tips"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillTipAccountColumns = "2026-03-01_backfill_tip_account_columns"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTipAccountColumns, apply: backfillTipAccountColumns},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillTipAccountColumns restores the indexed party and time columns of
// tip accounts written before they existed, reading them from the stored record.
func backfillTipAccountColumns(db *gorm.DB) error {
	var rows []ledger.TipAccountRow
	err := db.Where("sender_identity = '' OR recipient_identity = '' OR created_at_s = 0").
		Find(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		record, err := tips.DecodeRecord(row.Data)
		if err != nil {
			return err
		}
		err = db.Model(&ledger.TipAccountRow{}).
			Where("address = ?", row.Address).
			Updates(map[string]any{
				"sender_identity":    record.Sender.String(),
				"recipient_identity": record.Recipient.String(),
				"nonce":              record.Nonce,
				"created_at_s":       record.Timestamp,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
