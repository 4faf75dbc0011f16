// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormRaceRecord is one settled race.
type GormRaceRecord struct {
	gorm.Model
	RoomCode  string                 `gorm:"index;not null"`
	StartedAt time.Time              `gorm:"not null"`
	Duration  int64                  `gorm:"default:0"` // ms, winner crossing to settlement
	Results   map[string]interface{} `gorm:"type:jsonb;serializer:json;not null"`
	Finishers int                    `gorm:"default:0"`
	Retired   int                    `gorm:"default:0"`
}

// GormPlayerBest tracks the best finish time seen per player name.
type GormPlayerBest struct {
	gorm.Model
	Name     string `gorm:"uniqueIndex;not null"`
	BestTime int64  `gorm:"not null"` // ms
	Races    int    `gorm:"default:0"`
	Wins     int    `gorm:"default:0"`
}
