package record

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rosterflow/rosterflow/internal/db"
)

// effectRow marks a side effect as already performed. The key is the primary
// key, so the insert itself is the atomic claim.
type effectRow struct {
	Key     string `gorm:"primaryKey;column:key"`
	Created time.Time
}

func (effectRow) TableName() string { return "effects" }

// GormLedger is a durable effect ledger. Unlike the in-memory ledger it
// survives restarts, so a replayed webhook after a crash still hits the
// duplicate guard.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger opens the database and runs migrations.
func NewGormLedger(driver, dsn string) (*GormLedger, error) {
	gormDB, err := db.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open effect ledger: %w", err)
	}
	return WrapGormLedger(gormDB)
}

// WrapGormLedger builds a ledger on an already opened handle.
func WrapGormLedger(gormDB *gorm.DB) (*GormLedger, error) {
	ledger := &GormLedger{db: gormDB}
	if err := ledger.db.AutoMigrate(&effectRow{}); err != nil {
		return nil, fmt.Errorf("migrate effect ledger: %w", err)
	}
	return ledger, nil
}

// Record claims the effect key. It reports true when this call is the first
// to record the key. The conflict clause makes the claim atomic across
// processes sharing the database.
func (l *GormLedger) Record(ctx context.Context, key string) (bool, error) {
	row := effectRow{Key: key, Created: time.Now().UTC()}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("record effect: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release withdraws a claim; unknown keys are a no-op.
func (l *GormLedger) Release(ctx context.Context, key string) error {
	if err := l.db.WithContext(ctx).Where("key = ?", key).Delete(&effectRow{}).Error; err != nil {
		return fmt.Errorf("release effect: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *GormLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
