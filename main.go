package main

import (
	"fmt"

	"github.com/wfunc/raceserver/config"
	"github.com/wfunc/raceserver/logger"
	"github.com/wfunc/raceserver/monitor"
	"github.com/wfunc/raceserver/persistence"
	"github.com/wfunc/raceserver/server"
)

func main() {
	logger.Init()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openRaceStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Infof("Database connection successful (%s driver).", cfg.Database.Driver)

	mon := monitor.NewMonitor("raceserver")
	mon.StartServer(cfg.Server.MetricsAddress)

	gameServer := server.NewGameServer(
		cfg.Server.HTTPAddress,
		cfg.Server.RPCAddress,
		cfg.Race.GracePeriod,
		store,
		mon,
	)

	logger.Log.Infof("Starting race server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

// openRaceStore picks the persistence implementation from the
// database.driver setting.
func openRaceStore(cfg *config.Config) (persistence.RaceStore, error) {
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "", "gorm":
		return persistence.NewGormRaceStore(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "sql":
		return persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
