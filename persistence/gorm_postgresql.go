// persistence/gorm_postgresql.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/raceserver/models"
)

// GormRaceStore is the GORM-backed RaceStore.
type GormRaceStore struct {
	db *gorm.DB
}

func NewGormRaceStore(host string, port int, user, password, dbname string) (*GormRaceStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormRaceRecord{}, &models.GormPlayerBest{}); err != nil {
		return nil, err
	}

	return &GormRaceStore{db: db}, nil
}

// SaveRace writes the race record and folds finished entries into the
// per-player bests, all in one transaction.
func (s *GormRaceStore) SaveRace(roomCode string, startedAt time.Time, duration int64, results []models.FinishResult) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		finishers, retired := 0, 0
		resultRows := make([]interface{}, 0, len(results))
		for _, r := range results {
			if r.Status == models.StatusFinished {
				finishers++
			} else {
				retired++
			}
			row := map[string]interface{}{
				"id":       r.PlayerID,
				"name":     r.Name,
				"position": r.Position,
				"status":   r.Status,
			}
			if r.Time != nil {
				row["time"] = *r.Time
			}
			resultRows = append(resultRows, row)
		}

		record := models.GormRaceRecord{
			RoomCode:  roomCode,
			StartedAt: startedAt,
			Duration:  duration,
			Results:   map[string]interface{}{"results": resultRows},
			Finishers: finishers,
			Retired:   retired,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		for _, r := range results {
			if r.Status != models.StatusFinished || r.Time == nil {
				continue
			}
			if err := upsertBest(tx, r.Name, *r.Time, r.Position == 1); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertBest(tx *gorm.DB, name string, timeMs int64, won bool) error {
	var best models.GormPlayerBest
	result := tx.Where("name = ?", name).First(&best)

	if result.Error == gorm.ErrRecordNotFound {
		best = models.GormPlayerBest{
			Name:     name,
			BestTime: timeMs,
			Races:    1,
		}
		if won {
			best.Wins = 1
		}
		return tx.Create(&best).Error
	} else if result.Error != nil {
		return result.Error
	}

	best.Races++
	if won {
		best.Wins++
	}
	if timeMs < best.BestTime {
		best.BestTime = timeMs
	}
	return tx.Save(&best).Error
}

func (s *GormRaceStore) TopPlayers(limit int) ([]LeaderboardEntry, error) {
	var rows []models.GormPlayerBest
	if err := s.db.Order("best_time asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, LeaderboardEntry{
			Name:     r.Name,
			BestTime: r.BestTime,
			Races:    r.Races,
			Wins:     r.Wins,
		})
	}
	return entries, nil
}

func (s *GormRaceStore) PlayerBest(name string) (*LeaderboardEntry, error) {
	var row models.GormPlayerBest
	if err := s.db.Where("name = ?", name).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &LeaderboardEntry{
		Name:     row.Name,
		BestTime: row.BestTime,
		Races:    row.Races,
		Wins:     row.Wins,
	}, nil
}

func (s *GormRaceStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
