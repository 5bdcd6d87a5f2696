package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/secomp2025/cardgolf/config"
	"github.com/secomp2025/cardgolf/database"
	"github.com/secomp2025/cardgolf/game"
	"github.com/secomp2025/cardgolf/models"
	log "github.com/spf13/jwalterweatherman"
)

type StandingsSource interface {
	Standings(ctx context.Context) ([]models.Standing, error)
}

// StatusHandler serves read-only views of the contest log, results files and
// standings.
type StatusHandler struct {
	cfg       *config.Config
	standings StandingsSource
	now       func() time.Time
}

func NewStatusHandler(cfg *config.Config, standings StandingsSource) *StatusHandler {
	return &StatusHandler{cfg: cfg, standings: standings, now: time.Now}
}

func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /contest", h.Contest)
	mux.HandleFunc("GET /results/{key}", h.Results)
	mux.HandleFunc("GET /standings", h.Standings)
}

type contestResponse struct {
	Key    string           `json:"key"`
	Status game.Status      `json:"status"`
	Active bool             `json:"active"`
	EndsAt time.Time        `json:"ends_at"`
	PostID string           `json:"tweet_id"`
	Cards  []models.CardRef `json:"cards"`
}

// Contest returns the latest contest and whether it still accepts entries.
func (h *StatusHandler) Contest(w http.ResponseWriter, r *http.Request) {
	contests, err := database.LoadContestLog(h.cfg.Storage.ContestLog)
	if err != nil {
		log.ERROR.Printf("Failed to load contest log: %v", err)
		WriteError(w, http.StatusInternalServerError, "contest log unavailable")
		return
	}
	latest, ok := contests.Latest()
	if !ok {
		WriteError(w, http.StatusNotFound, "no contest yet")
		return
	}
	start, err := latest.StartedAt()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "malformed contest key")
		return
	}

	status := game.StatusAt(start, h.now(), h.cfg.Contest.Window)
	WriteJSON(w, http.StatusOK, contestResponse{
		Key:    latest.Key,
		Status: status,
		Active: status == game.StatusActive,
		EndsAt: start.Add(h.cfg.Contest.Window),
		PostID: latest.PostID,
		Cards:  latest.Cards,
	})
}

func (h *StatusHandler) Results(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, err := models.ParseKey(key); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid contest key")
		return
	}

	results, err := database.LoadResults(h.cfg.Storage.ResultsDir, key)
	if errors.Is(err, os.ErrNotExist) {
		WriteError(w, http.StatusNotFound, "no results for contest")
		return
	}
	if err != nil {
		log.ERROR.Printf("Failed to load results for %s: %v", key, err)
		WriteError(w, http.StatusInternalServerError, "results unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

func (h *StatusHandler) Standings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.standings.Standings(r.Context())
	if err != nil {
		log.ERROR.Printf("Failed to load standings: %v", err)
		WriteError(w, http.StatusInternalServerError, "standings unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, standings)
}
