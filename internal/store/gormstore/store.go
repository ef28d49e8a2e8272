// Package gormstore persists per-symbol engine checkpoints in SQLite via
// Gorm. A checkpoint is written on controller stop and on a periodic timer;
// it is read back once during controller recovery.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"makerd/internal/gateway/exchange"
	"makerd/internal/risk"
	"makerd/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Checkpoint is the unit of persistence for one symbol controller.
type Checkpoint struct {
	Symbol   string                   `json:"symbol"`
	Risk     risk.PersistedState      `json:"risk"`
	Position exchange.Position        `json:"position"`
	Orders   []exchange.TrackedOrder  `json:"orders"`
	SavedAt  time.Time                `json:"saved_at"`
}

// StateStore is the persistence port consumed by the engine.
type StateStore interface {
	SaveState(ctx context.Context, cp Checkpoint) error
	LoadState(ctx context.Context, symbol string) (Checkpoint, bool, error)
	DeleteState(ctx context.Context, symbol string) error
}

type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.CheckpointModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveState(ctx context.Context, cp Checkpoint) error {
	if cp.Symbol == "" {
		return fmt.Errorf("checkpoint requires symbol")
	}
	cp.SavedAt = time.Now()
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint failed: %w", err)
	}
	rec := model.CheckpointModel{
		Symbol:    cp.Symbol,
		Payload:   datatypes.JSON(raw),
		UpdatedAt: cp.SavedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&rec).Error
}

func (s *GormStore) LoadState(ctx context.Context, symbol string) (Checkpoint, bool, error) {
	var rec model.CheckpointModel
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(rec.Payload, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decoding checkpoint for %s failed: %w", symbol, err)
	}
	return cp, true, nil
}

// DeleteState drops a symbol's checkpoint; used by the ops restart endpoint
// so a halted symbol comes back with a clean risk slate.
func (s *GormStore) DeleteState(ctx context.Context, symbol string) error {
	return s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Delete(&model.CheckpointModel{}).Error
}
