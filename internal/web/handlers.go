package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clubsync/internal/ics"
	"clubsync/internal/model"
	"clubsync/internal/sync"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createConfigRequest struct {
	ClubID    string `json:"clubId"`
	Name      string `json:"name"`
	FeedURL   string `json:"icsUrl"`
	CreatedBy string `json:"createdBy"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClubID == "" || req.Name == "" || !validFeedURL(req.FeedURL) {
		writeError(w, http.StatusBadRequest, "clubId, name and a http(s) icsUrl are required")
		return
	}

	now := time.Now().UnixMilli()
	cfg := model.SyncConfiguration{
		ID:             uuid.NewString(),
		ClubID:         req.ClubID,
		Name:           req.Name,
		FeedURL:        req.FeedURL,
		Active:         true,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastSyncStatus: model.StatusIdle,
	}
	if err := s.configs.CreateConfig(r.Context(), cfg); err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.getConfig(w, r)
	if cfg == nil || err != nil {
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd model.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.FeedURL != nil && !validFeedURL(*upd.FeedURL) {
		writeError(w, http.StatusBadRequest, "icsUrl must be http(s)")
		return
	}

	cfg, err := s.configs.UpdateConfig(r.Context(), chi.URLParam(r, "syncID"), upd)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.getConfig(w, r)
	if cfg == nil || err != nil {
		return
	}
	if err := s.configs.DeleteConfig(r.Context(), cfg.ID); err != nil {
		writeSyncError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.ListConfigs(r.Context(), chi.URLParam(r, "clubID"))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if configs == nil {
		configs = []model.SyncConfiguration{}
	}
	writeJSON(w, http.StatusOK, configs)
}

// handleRun starts a sync in the background and replies immediately; the
// caller polls the status endpoint for progress.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.getConfig(w, r)
	if cfg == nil || err != nil {
		return
	}
	if !cfg.Active {
		writeSyncError(w, sync.ErrInactive)
		return
	}
	if cfg.LastSyncStatus == model.StatusRunning {
		writeSyncError(w, sync.ErrSyncInProgress)
		return
	}

	go func() {
		if _, err := s.syncer.Sync(context.Background(), cfg.ID); err != nil &&
			!errors.Is(err, sync.ErrSyncCancelled) {
			s.log.Warn().Err(err).Str("sync_id", cfg.ID).Msg("background sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.Cancel(r.Context(), chi.URLParam(r, "syncID")); err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type statusResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Active         bool               `json:"isActive"`
	LastSyncAt     int64              `json:"lastSyncAt,omitempty"`
	LastSyncStatus model.SyncStatus   `json:"lastSyncStatus"`
	LastSyncError  string             `json:"lastSyncError,omitempty"`
	Run            *model.SyncRun     `json:"run,omitempty"`
	Stats          model.SyncStats    `json:"stats"`
	SuccessRate    int                `json:"successRate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.getConfig(w, r)
	if cfg == nil || err != nil {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Active:         cfg.Active,
		LastSyncAt:     cfg.LastSyncAt,
		LastSyncStatus: cfg.LastSyncStatus,
		LastSyncError:  cfg.LastSyncError,
		Run:            cfg.Run,
		Stats:          cfg.Stats,
		SuccessRate:    cfg.Stats.SuccessRate(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.getConfig(w, r)
	if cfg == nil || err != nil {
		return
	}
	entries, err := s.configs.ListHistory(r.Context(), cfg.ID, queryLimit(r))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if entries == nil {
		entries = []model.SyncHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListRunning(w http.ResponseWriter, r *http.Request) {
	running, err := s.configs.ListRunning(r.Context())
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if running == nil {
		running = []model.SyncConfiguration{}
	}
	writeJSON(w, http.StatusOK, running)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	acts, err := s.configs.RecentActivity(r.Context(), queryLimit(r))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if acts == nil {
		acts = []model.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.configs.StatsSummary(r.Context(), r.URL.Query().Get("club_id"))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListByClub(r.Context(), chi.URLParam(r, "clubID"))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleFeed republishes a club's merged events as an ICS feed.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	clubID := chi.URLParam(r, "clubID")
	events, err := s.events.ListByClub(r.Context(), clubID)
	if err != nil {
		writeSyncError(w, err)
		return
	}

	data, err := ics.ExportCalendar("clubsync "+clubID, events)
	if err != nil {
		writeSyncError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="feed.ics"`)
	w.Write(data)
}

// getConfig loads the configuration from the URL, writing the 404 itself
// when absent.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) (*model.SyncConfiguration, error) {
	cfg, err := s.configs.GetConfig(r.Context(), chi.URLParam(r, "syncID"))
	if err != nil {
		writeSyncError(w, err)
		return nil, err
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "sync configuration not found")
		return nil, nil
	}
	return cfg, nil
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func validFeedURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
