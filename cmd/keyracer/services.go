package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/keyracer/keyracer/internal/gateway"
	"github.com/keyracer/keyracer/internal/passage"
	"github.com/keyracer/keyracer/internal/race"
	"github.com/keyracer/keyracer/internal/relay"
	"github.com/keyracer/keyracer/internal/stats"
)

// Services holds the wired application components.
type Services struct {
	Race      *race.Service
	Manager   *gateway.ConnectionManager
	WS        *gateway.WebSocketHandler
	Stats     *stats.Handler
	Publisher *relay.Publisher
}

func setupServices(cfg *Config, pool *pgxpool.Pool) *Services {
	// Database layer -> repository -> app, then the race coordinator on top.
	statsRepo := stats.NewRepository(pool)
	statsApp := stats.NewApp(statsRepo)

	catalog, err := passage.LoadCatalog(cfg.Passages.File)
	if err != nil {
		// Degraded mode: races run against the built-in fallback passages.
		log.Warn().Err(err).Msg("passage catalog unavailable, continuing with fallbacks")
	}
	selector := passage.NewSelector(catalog)

	var publisher *relay.Publisher
	var racePublisher race.EventPublisher
	if cfg.Relay.Enabled {
		relayCfg := relay.DefaultConfig()
		if cfg.Relay.URL != "" {
			relayCfg.URL = cfg.Relay.URL
		}
		if cfg.Relay.SubjectPrefix != "" {
			relayCfg.SubjectPrefix = cfg.Relay.SubjectPrefix
		}
		publisher, err = relay.NewPublisher(relayCfg)
		if err != nil {
			log.Warn().Err(err).Msg("race event relay unavailable, continuing without it")
		} else {
			racePublisher = publisher
		}
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	raceSvc := race.NewService(selector, manager, statsApp, racePublisher, clockwork.NewRealClock(), race.DefaultConfig())

	return &Services{
		Race:      raceSvc,
		Manager:   manager,
		WS:        gateway.NewWebSocketHandler(manager, raceSvc),
		Stats:     stats.NewHandler(statsApp),
		Publisher: publisher,
	}
}
