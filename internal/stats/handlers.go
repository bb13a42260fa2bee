package stats

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	defaultLeaderboardSize = 10
	defaultHistoryPage     = 50
)

// Handler exposes the read-side stats endpoints.
type Handler struct {
	app *App
}

// NewHandler creates the HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes mounts the stats endpoints on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("/api/raceHistory/", h.HandleRaceHistory)
}

// HandleLeaderboard serves the top players by best WPM.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.app.Leaderboard(r.Context(), defaultLeaderboardSize)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleRaceHistory serves a paginated slice of one player's race records.
func (h *Handler) HandleRaceHistory(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimPrefix(r.URL.Path, "/api/raceHistory/")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", defaultHistoryPage)
	offset := queryInt(r, "offset", 0)

	records, total, err := h.app.RaceHistory(r.Context(), username, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("race history query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"races":   records,
		"total":   total,
		"hasMore": offset+len(records) < total,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
