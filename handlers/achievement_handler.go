package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spottedAPI/internal/achievement"
	"spottedAPI/internal/apperrors"
	"spottedAPI/services"
)

type AchievementHandler struct {
	achievementService *services.AchievementService
	userService        *services.UserService
}

func NewAchievementHandler(achievementService *services.AchievementService, userService *services.UserService) *AchievementHandler {
	return &AchievementHandler{
		achievementService: achievementService,
		userService:        userService,
	}
}

func (h *AchievementHandler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := resolveAuthenticatedUser(ctx, w, h.userService)
	if !ok {
		return
	}

	achievements, err := h.achievementService.FindAllForUser(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if achievements == nil {
		achievements = []achievement.Achievement{}
	}

	respondWithJSON(w, http.StatusOK, achievement.AchievementsResponse{Achievements: achievements})
}

func (h *AchievementHandler) GetAchievement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := resolveAuthenticatedUser(ctx, w, h.userService)
	if !ok {
		return
	}

	achievementID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid achievement ID")
		return
	}

	a, err := h.achievementService.FindByID(ctx, achievementID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if a == nil {
		respondWithError(w, http.StatusNotFound, "Achievement not found")
		return
	}
	if a.UserID != u.ID {
		respondWithServiceError(w, apperrors.Forbidden("you don't have access to this achievement"))
		return
	}

	respondWithJSON(w, http.StatusOK, achievement.AchievementResponse{Achievement: a})
}
