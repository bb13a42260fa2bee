// Package relay publishes race events to NATS for external consumers such as
// leaderboard aggregators. The race core treats it as best-effort.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/keyracer/keyracer/internal/race"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default relay settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "race.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher relays race events onto NATS subjects, one subject per event
// type.
type Publisher struct {
	nc     *nats.Conn
	config Config
}

// NewPublisher connects to NATS.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", config.URL).Str("subject_prefix", config.SubjectPrefix).Msg("race event relay connected")
	return &Publisher{nc: nc, config: config}, nil
}

// Publish implements race.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event *race.Event) error {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, event.Type)

	envelope := map[string]interface{}{
		"eventId":   event.ID,
		"eventType": string(event.Type),
		"raceId":    event.RaceID,
		"timestamp": event.Timestamp,
		"payload":   event.Data,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
