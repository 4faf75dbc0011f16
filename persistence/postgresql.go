// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/raceserver/models"
)

// PostgreSQL is the plain database/sql RaceStore, for deployments that do
// not want the ORM in the path.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &PostgreSQL{db: db}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (p *PostgreSQL) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS race_records (
		id SERIAL PRIMARY KEY,
		room_code TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration BIGINT NOT NULL DEFAULT 0,
		results JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_race_records_room_code ON race_records(room_code);

	CREATE TABLE IF NOT EXISTS player_bests (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		best_time BIGINT NOT NULL,
		races INT NOT NULL DEFAULT 0,
		wins INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	_, err := p.db.Exec(schema)
	return err
}

func (p *PostgreSQL) SaveRace(roomCode string, startedAt time.Time, duration int64, results []models.FinishResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO race_records (room_code, started_at, duration, results) VALUES ($1, $2, $3, $4)`,
		roomCode, startedAt, duration, resultsJSON,
	)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Status != models.StatusFinished || r.Time == nil {
			continue
		}
		won := 0
		if r.Position == 1 {
			won = 1
		}
		_, err = tx.Exec(`
			INSERT INTO player_bests (name, best_time, races, wins, updated_at)
			VALUES ($1, $2, 1, $3, NOW())
			ON CONFLICT (name) DO UPDATE SET
				best_time = LEAST(player_bests.best_time, EXCLUDED.best_time),
				races = player_bests.races + 1,
				wins = player_bests.wins + EXCLUDED.wins,
				updated_at = NOW()`,
			r.Name, *r.Time, won,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *PostgreSQL) TopPlayers(limit int) ([]LeaderboardEntry, error) {
	rows, err := p.db.Query(
		`SELECT name, best_time, races, wins FROM player_bests ORDER BY best_time ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.BestTime, &e.Races, &e.Wins); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgreSQL) PlayerBest(name string) (*LeaderboardEntry, error) {
	var e LeaderboardEntry
	err := p.db.QueryRow(
		`SELECT name, best_time, races, wins FROM player_bests WHERE name = $1`,
		name,
	).Scan(&e.Name, &e.BestTime, &e.Races, &e.Wins)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
