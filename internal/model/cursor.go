package model

import "time"

// SyncCursor remembers how far an ingestion job has read.
type SyncCursor struct {
	Name      string    `json:"name" gorm:"primaryKey;size:64"`
	Position  time.Time `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyncCursor) TableName() string { return "sync_cursors" }

// LedgerCursorName is the cursor for funding payment ingestion of currency.
func LedgerCursorName(currency string) string {
	return "ledger:" + currency
}
