package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Progression Engine API",
		"version":     "v1",
		"description": "Points, levels, streaks, achievements and daily challenges",
		"endpoints": map[string]string{
			"health":       "/health",
			"activities":   "/api/v1/activities",
			"leaderboard":  "/api/v1/leaderboard",
			"snapshot":     "/api/v1/users/{id}/snapshot",
			"achievements": "/api/v1/users/{id}/achievements",
			"challenges":   "/api/v1/users/{id}/challenges",
			"stats":        "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics handles the metrics endpoint.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// submitActivityRequest is the JSON body for POST /api/v1/activities.
type submitActivityRequest struct {
	UserID       string          `json:"user_id"`
	ActivityType string          `json:"activity_type"`
	Description  string          `json:"description,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// handleSubmitActivity handles POST /api/v1/activities
func (s *Server) handleSubmitActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitActivityHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Activity handler not configured")
		return
	}

	var req submitActivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	defer r.Body.Close()

	activityType := progression.ActivityType(req.ActivityType)
	metadata, err := decodeMetadata(activityType, req.Metadata)
	if err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_metadata",
			"Metadata does not match activity type", err.Error())
		return
	}

	cmd := command.SubmitActivityCommand{
		UserID:        req.UserID,
		ActivityType:  activityType,
		Metadata:      metadata,
		Description:   req.Description,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.SubmitActivityHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to submit activity")
		return
	}

	writeJSONWithMeta(w, r, http.StatusCreated, result, nil)
}

// decodeMetadata maps the raw JSON metadata to the typed variant for the
// activity type. Types without a payload accept an absent or empty object.
// Synthetic types get an empty variant and are rejected by command validation.
func decodeMetadata(activityType progression.ActivityType, raw json.RawMessage) (progression.Metadata, error) {
	switch activityType {
	case progression.ActivityQuizCompleted:
		var m struct {
			Score  int    `json:"score"`
			QuizID string `json:"quiz_id"`
		}
		if err := unmarshalMetadata(raw, &m); err != nil {
			return nil, err
		}
		return progression.QuizMetadata{Score: m.Score, QuizID: m.QuizID}, nil

	case progression.ActivityManualAward:
		var m struct {
			Points int    `json:"points"`
			Reason string `json:"reason"`
		}
		if err := unmarshalMetadata(raw, &m); err != nil {
			return nil, err
		}
		return progression.ManualMetadata{Points: m.Points, Reason: m.Reason}, nil

	default:
		return progression.EmptyMetadata{Type: activityType}, nil
	}
}

// unmarshalMetadata rejects an absent metadata object for types that need one.
func unmarshalMetadata(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("metadata is required for this activity type")
	}
	return json.Unmarshal(raw, v)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.GetLeaderboardQuery{
		Limit:  getQueryParamInt(r, "limit", 20),
		Offset: getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get leaderboard")
		return
	}

	meta := &ResponseMeta{
		TotalCount: result.TotalCount,
		HasMore:    result.HasMore,
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSnapshot handles GET /api/v1/users/{id}/snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetSnapshotHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Snapshot handler not configured")
		return
	}

	q := query.GetSnapshotQuery{UserID: userID}

	result, err := s.deps.GetSnapshotHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/users/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetAchievementsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Achievements handler not configured")
		return
	}

	q := query.GetAchievementsQuery{
		UserID:       userID,
		OnlyUnlocked: getQueryParamBool(r, "only_unlocked"),
	}

	result, err := s.deps.GetAchievementsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get achievements")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetDailyChallenges handles GET /api/v1/users/{id}/challenges
func (s *Server) handleGetDailyChallenges(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetDailyChallengesHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Challenges handler not configured")
		return
	}

	q := query.GetDailyChallengesQuery{UserID: userID}
	if dateStr := getQueryParam(r, "date", ""); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Date must be in YYYY-MM-DD format")
			return
		}
		q.Date = date
	}

	result, err := s.deps.GetDailyChallengesHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get daily challenges")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATIVE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// generateChallengesRequest is the JSON body for POST /api/v1/challenges/generate.
// An empty body generates the cohort for today.
type generateChallengesRequest struct {
	Date  string `json:"date,omitempty"`
	Force bool   `json:"force,omitempty"`
}

// handleGenerateChallenges handles POST /api/v1/challenges/generate
func (s *Server) handleGenerateChallenges(w http.ResponseWriter, r *http.Request) {
	if s.deps.GenerateChallengesHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Challenge generation not configured")
		return
	}

	var req generateChallengesRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
			return
		}
		defer r.Body.Close()
	}

	cmd := command.GenerateChallengesCommand{Force: req.Force}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Date must be in YYYY-MM-DD format")
			return
		}
		cmd.Date = date
	}

	result, err := s.deps.GenerateChallengesHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to generate challenges")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":  s.Uptime().String(),
			"running": s.IsRunning(),
		},
	}

	// Add leaderboard stats if handler is available
	if s.deps.GetLeaderboardHandler != nil {
		q := query.GetLeaderboardQuery{Limit: 1}
		result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
		if err == nil {
			stats["leaderboard"] = map[string]interface{}{
				"total_users": result.TotalCount,
				"from_cache":  result.FromCache,
			}
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMessage string) {
	s.logger.Error(logMessage,
		logger.Err(err),
		logger.String("path", r.URL.Path),
		logger.String("request_id", getRequestID(r.Context())),
	)

	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request",
			"Request validation failed", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
	case shared.IsConflict(err) || shared.IsRetryable(err):
		// Conflict retries are exhausted by the command handler before
		// the error reaches this layer.
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "conflict",
			"Concurrent update conflict, please retry")
	case errors.Is(err, shared.ErrCascadeDepthExceeded):
		writeJSONError(w, http.StatusInternalServerError, "cascade_depth_exceeded",
			"Activity cascade exceeded the depth limit")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error",
			"An unexpected error occurred")
	}
}
