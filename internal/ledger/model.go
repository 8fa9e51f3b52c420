package ledger

// Account holds the lamport balance of one identity.
type Account struct {
	Identity         string `gorm:"column:identity;primaryKey;size:44;not null"`
	Lamports         uint64 `gorm:"column:lamports;not null;default:0"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "ledger_accounts"
}

// TransferEntry is the append-only journal of balance movements.
type TransferEntry struct {
	EntryID          string `gorm:"column:entry_id;primaryKey;size:36;not null"`
	FromIdentity     string `gorm:"column:from_identity;size:44;not null;index:idx_transfers_from_time,priority:1"`
	ToIdentity       string `gorm:"column:to_identity;size:44;not null;index:idx_transfers_to_time,priority:1"`
	Lamports         uint64 `gorm:"column:lamports;not null"`
	Kind             string `gorm:"column:kind;size:16;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null;index:idx_transfers_from_time,priority:2;index:idx_transfers_to_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (TransferEntry) TableName() string {
	return "ledger_transfers"
}

const (
	entryKindTransfer = "transfer"
	entryKindCredit   = "credit"
)

// TipAccountRow stores an encoded tip record at its derived address.
type TipAccountRow struct {
	Address           string `gorm:"column:address;primaryKey;size:44;not null"`
	SenderIdentity    string `gorm:"column:sender_identity;size:44;not null;index"`
	RecipientIdentity string `gorm:"column:recipient_identity;size:44;not null;index"`
	Nonce             uint8  `gorm:"column:nonce;not null"`
	Data              []byte `gorm:"column:data;not null"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TipAccountRow) TableName() string {
	return "tip_accounts"
}

// Models lists every table owned by the ledger, in migration order.
func Models() []any {
	return []any{&Account{}, &TransferEntry{}, &TipAccountRow{}}
}
