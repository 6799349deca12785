package record

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

// recordRow is the database shape of a core.ExternalRecord. The identity
// columns hold the normalized names so lookups stay case-insensitive without
// database-specific collation tricks.
type recordRow struct {
	GuardianName string `gorm:"primaryKey;column:guardian_name"`
	PlayerName   string `gorm:"primaryKey;column:player_name"`
	PriorSeason  bool   `gorm:"column:prior_season"`
	TeamName     string `gorm:"column:team_name"`
	KitSize      string `gorm:"column:kit_size"`
	MandateRef   string `gorm:"column:mandate_ref"`
	PhotoURL     string `gorm:"column:photo_url"`
	ExtraJSON    string `gorm:"column:extra_json"`
	Created      time.Time
	Updated      time.Time
}

func (recordRow) TableName() string { return "registrations" }

// GormStore persists registration records through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs migrations.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := db.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate record store: %w", err)
	}
	return store, nil
}

// WrapGorm builds a store on an already opened handle so the ledger and the
// record table can share one database.
func WrapGorm(gormDB *gorm.DB) (*GormStore, error) {
	store := &GormStore{db: gormDB}
	if err := store.db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate record store: %w", err)
	}
	return store, nil
}

// Find returns the record matching the normalized identity or
// core.ErrRecordNotFound.
func (s *GormStore) Find(ctx context.Context, id core.Identity) (*core.ExternalRecord, error) {
	n := id.Normalize()
	if !n.Complete() {
		return nil, core.ErrRecordNotFound
	}
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("guardian_name = ? AND player_name = ?", n.GuardianName, n.PlayerName).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return row.toRecord()
}

// CreateOrUpdate upserts the record for the identity, merging the field
// delta, and returns the record after the write.
func (s *GormStore) CreateOrUpdate(ctx context.Context, id core.Identity, delta map[string]any) (*core.ExternalRecord, error) {
	n := id.Normalize()
	if !n.Complete() {
		return nil, core.E(core.CodeValidation, "record.CreateOrUpdate", "identity requires both guardian and player name")
	}

	var out *core.ExternalRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var row recordRow
		err := tx.Where("guardian_name = ? AND player_name = ?", n.GuardianName, n.PlayerName).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = recordRow{GuardianName: n.GuardianName, PlayerName: n.PlayerName, Created: now}
		case err != nil:
			return fmt.Errorf("load record: %w", err)
		}

		rec, err := row.toRecord()
		if err != nil {
			return err
		}
		ApplyDelta(rec, delta)
		merged, err := rowFromRecord(rec)
		if err != nil {
			return err
		}
		merged.Created = row.Created
		merged.Updated = now
		if err := tx.Save(&merged).Error; err != nil {
			return fmt.Errorf("save record: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func rowFromRecord(rec *core.ExternalRecord) (recordRow, error) {
	var extra string
	if len(rec.Extra) > 0 {
		encoded, err := json.Marshal(rec.Extra)
		if err != nil {
			return recordRow{}, fmt.Errorf("marshal record extra: %w", err)
		}
		extra = string(encoded)
	}
	n := rec.Identity.Normalize()
	return recordRow{
		GuardianName: n.GuardianName,
		PlayerName:   n.PlayerName,
		PriorSeason:  rec.PriorSeasonParticipant,
		TeamName:     rec.TeamName,
		KitSize:      rec.KitSize,
		MandateRef:   rec.MandateRef,
		PhotoURL:     rec.PhotoURL,
		ExtraJSON:    extra,
	}, nil
}

func (r recordRow) toRecord() (*core.ExternalRecord, error) {
	rec := &core.ExternalRecord{
		Identity:               core.Identity{GuardianName: r.GuardianName, PlayerName: r.PlayerName},
		PriorSeasonParticipant: r.PriorSeason,
		TeamName:               r.TeamName,
		KitSize:                r.KitSize,
		MandateRef:             r.MandateRef,
		PhotoURL:               r.PhotoURL,
	}
	if r.ExtraJSON != "" {
		if err := json.Unmarshal([]byte(r.ExtraJSON), &rec.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal record extra: %w", err)
		}
	}
	return rec, nil
}

// ApplyDelta merges a field delta into a record. Known keys update the typed
// columns; anything else lands in Extra so collaborator-specific values are
// never dropped.
func ApplyDelta(rec *core.ExternalRecord, delta map[string]any) {
	for key, value := range delta {
		switch key {
		case "team_name":
			rec.TeamName = asString(value)
		case "kit_size":
			rec.KitSize = asString(value)
		case "mandate_ref":
			rec.MandateRef = asString(value)
		case "photo_url":
			rec.PhotoURL = asString(value)
		case "prior_season_participant":
			if b, ok := value.(bool); ok {
				rec.PriorSeasonParticipant = b
			}
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[key] = value
		}
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
