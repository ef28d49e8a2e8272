package model

import (
	"time"

	"gorm.io/datatypes"
)

// CheckpointModel is one per-symbol engine checkpoint row. Payload carries
// the JSON-encoded RiskState + Position + open orders snapshot.
type CheckpointModel struct {
	ID        uint           `gorm:"primaryKey"`
	Symbol    string         `gorm:"uniqueIndex;size:32"`
	Payload   datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}

func (CheckpointModel) TableName() string { return "checkpoints" }
