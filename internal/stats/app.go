package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyracer/keyracer/internal/race"
)

// wpmWindow is how many recent races feed the rolling average speed.
const wpmWindow = 10

// App holds the player-stats business logic and implements race.StatsStore.
type App struct {
	repo *Repository
}

// NewApp creates the stats app.
func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// GetProfile loads a player profile, creating a default row on first sight.
func (a *App) GetProfile(ctx context.Context, username string) (race.PlayerProfile, error) {
	player, err := a.repo.GetPlayer(ctx, username)
	if errors.Is(err, ErrNotFound) {
		player, err = a.repo.CreatePlayer(ctx, username, "#FF6B6B")
	}
	if err != nil {
		return race.PlayerProfile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return toProfile(player), nil
}

// RecordRaceResult folds one finished race into the player's aggregates: WPM
// history capped to the last ten races, rolling average, high score as best
// WPM, win and race counters, and an appended history record.
func (a *App) RecordRaceResult(ctx context.Context, username string, result race.RaceResult) (race.PlayerProfile, error) {
	player, err := a.repo.GetPlayer(ctx, username)
	if errors.Is(err, ErrNotFound) {
		player, err = a.repo.CreatePlayer(ctx, username, "#FF6B6B")
	}
	if err != nil {
		return race.PlayerProfile{}, fmt.Errorf("failed to load player for result: %w", err)
	}

	player.WPMHistory, player.AverageWPM = foldWPM(player.WPMHistory, result.WPM)
	if result.WPM > player.HighScore {
		player.HighScore = result.WPM
	}
	player.TotalRaces++
	if result.Win {
		player.Wins++
	}

	record := RaceRecord{
		Username: username,
		WPM:      result.WPM,
		Accuracy: result.Accuracy,
		Rank:     result.Rank,
		RacedAt:  time.Now(),
	}
	if err := a.repo.UpdateStats(ctx, player, record); err != nil {
		return race.PlayerProfile{}, err
	}

	log.Info().
		Str("username", username).
		Float64("wpm", result.WPM).
		Int("rank", result.Rank).
		Bool("win", result.Win).
		Msg("race result recorded")

	return toProfile(player), nil
}

// UpdateColor persists a color change.
func (a *App) UpdateColor(ctx context.Context, username, color string) error {
	return a.repo.UpdateColor(ctx, username, color)
}

// Leaderboard returns the top players by best WPM.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]race.PlayerProfile, error) {
	players, err := a.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	profiles := make([]race.PlayerProfile, 0, len(players))
	for _, p := range players {
		profiles = append(profiles, toProfile(p))
	}
	return profiles, nil
}

// RaceHistory returns a page of a player's past races.
func (a *App) RaceHistory(ctx context.Context, username string, limit, offset int) ([]RaceRecord, int, error) {
	return a.repo.RaceHistory(ctx, username, limit, offset)
}

// foldWPM appends a sample to the rolling window and returns the new window
// and its rounded mean.
func foldWPM(history []float64, wpm float64) ([]float64, float64) {
	history = append(history, wpm)
	if len(history) > wpmWindow {
		history = history[len(history)-wpmWindow:]
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	return history, math.Round(sum / float64(len(history)))
}

func toProfile(p *Player) race.PlayerProfile {
	return race.PlayerProfile{
		Username:   p.Username,
		Color:      p.Color,
		AverageWPM: p.AverageWPM,
		HighScore:  p.HighScore,
		TotalRaces: p.TotalRaces,
		Wins:       p.Wins,
		WPMHistory: p.WPMHistory,
	}
}
