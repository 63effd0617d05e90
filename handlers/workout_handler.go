package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"spottedAPI/internal/challenge"
	"spottedAPI/services"
)

// WorkoutHandler is the "workout recorded" inbound trigger. The post itself is
// stored by the feed side before this runs; here only the challenge-progress
// fan-out happens.
type WorkoutHandler struct {
	workoutProgress *services.WorkoutProgressService
	userService     *services.UserService
}

func NewWorkoutHandler(workoutProgress *services.WorkoutProgressService, userService *services.UserService) *WorkoutHandler {
	return &WorkoutHandler{
		workoutProgress: workoutProgress,
		userService:     userService,
	}
}

func (h *WorkoutHandler) RecordWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	u, ok := resolveAuthenticatedUser(ctx, w, h.userService)
	if !ok {
		return
	}

	var req challenge.RecordWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DurationMinutes <= 0 {
		respondWithError(w, http.StatusBadRequest, "Workout duration must be positive")
		return
	}

	result, err := h.workoutProgress.RecordWorkout(ctx, u.ID, req.DurationMinutes)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, challenge.WorkoutRecordedResponse{
		UpdatedChallenges: result.UpdatedChallenges,
	})
}
