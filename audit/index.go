// Package audit maintains an off-band SQLite index of terminal transactions
// for reconciliation tooling. The index is fed by engine events and is
// strictly best effort: indexing failures are logged, never propagated.
package audit

import (
	"log/slog"
	"strconv"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"engineblox/core/events"
	"engineblox/native/secureops"
)

// Entry is one indexed terminal transition.
type Entry struct {
	ID            uint   `gorm:"primaryKey"`
	TxID          uint64 `gorm:"index"`
	EventType     string `gorm:"size:64;index"`
	Actor         string `gorm:"size:64"`
	OperationType string `gorm:"size:80"`
	RecordedAt    int64  `gorm:"autoCreateTime"`
}

// Index consumes engine events and records terminal transitions.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates or opens the audit database at path and migrates its schema.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Index{db: db, logger: logger}, nil
}

// Emit implements events.Emitter.
func (idx *Index) Emit(evt events.Event) {
	if idx == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case secureops.EventTypeTxApproved,
		secureops.EventTypeTxCancelled,
		secureops.EventTypeTxMetaApproved,
		secureops.EventTypeTxMetaCancelled,
		secureops.EventTypeTxRequestAndApproved:
	default:
		return
	}
	attrs := evt.Attributes()
	txID, err := strconv.ParseUint(attrs["txId"], 10, 64)
	if err != nil {
		idx.logger.Warn("audit: malformed txId attribute", "type", evt.EventType(), "err", err)
		return
	}
	actor := attrs["approver"]
	if actor == "" {
		actor = attrs["canceller"]
	}
	if actor == "" {
		actor = attrs["signer"]
	}
	entry := Entry{
		TxID:          txID,
		EventType:     evt.EventType(),
		Actor:         actor,
		OperationType: attrs["operationType"],
	}
	if err := idx.db.Create(&entry).Error; err != nil {
		idx.logger.Warn("audit: index write failed", "txId", txID, "err", err)
	}
}

// EntriesForTx returns the indexed transitions for a transaction id.
func (idx *Index) EntriesForTx(txID uint64) ([]Entry, error) {
	var out []Entry
	err := idx.db.Where("tx_id = ?", txID).Order("id asc").Find(&out).Error
	return out, err
}

var _ events.Emitter = (*Index)(nil)
