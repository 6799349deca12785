package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/internal/db"
)

// sessionRow is the database shape of a core.Session. Fields are stored as
// a JSON blob so new intake fields never need a migration.
type sessionRow struct {
	ID         string `gorm:"primaryKey;column:id"`
	Position   string `gorm:"column:position"`
	FieldsJSON string `gorm:"column:fields_json"`
	Status     string `gorm:"column:status;index"`
	Created    time.Time
	Updated    time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

// GormStore persists sessions through GORM, backed by sqlite or postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs migrations.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := db.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return store, nil
}

// Create stores a fresh session under id, overwriting any existing row.
func (s *GormStore) Create(ctx context.Context, id string) (*core.Session, error) {
	sess := core.NewSession(id)
	row, err := rowFromSession(sess)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns the session or core.ErrSessionNotFound.
func (s *GormStore) Get(ctx context.Context, id string) (*core.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.toSession()
}

// Save persists the full session snapshot, last writer wins.
func (s *GormStore) Save(ctx context.Context, sess *core.Session) error {
	row, err := rowFromSession(sess)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes a session; unknown ids are a no-op.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose Updated stamp is before the cutoff.
func (s *GormStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated < ?", cutoff).Delete(&sessionRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the underlying database handle.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func rowFromSession(sess *core.Session) (sessionRow, error) {
	clone := sess.Clone()
	fields, err := json.Marshal(clone.Fields)
	if err != nil {
		return sessionRow{}, fmt.Errorf("marshal session fields: %w", err)
	}
	var marker string
	if clone.Position != nil {
		marker = clone.Position.Marker()
	}
	return sessionRow{
		ID:         clone.ID,
		Position:   marker,
		FieldsJSON: string(fields),
		Status:     string(clone.Status),
		Created:    clone.Created,
		Updated:    clone.Updated,
	}, nil
}

func (r sessionRow) toSession() (*core.Session, error) {
	sess := core.NewSession(r.ID)
	sess.Status = core.Status(r.Status)
	sess.Created = r.Created
	sess.Updated = r.Updated
	if r.FieldsJSON != "" {
		if err := json.Unmarshal([]byte(r.FieldsJSON), &sess.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal session fields: %w", err)
		}
	}
	if r.Position != "" {
		pos, err := core.ParseMarker(r.Position)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", r.ID, err)
		}
		sess.Position = &pos
	}
	return sess, nil
}
