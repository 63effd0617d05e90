package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"spottedAPI/internal/notification"
	"spottedAPI/services"
)

type NotificationHandler struct {
	dispatcher  *services.NotificationDispatcher
	userService *services.UserService
}

func NewNotificationHandler(dispatcher *services.NotificationDispatcher, userService *services.UserService) *NotificationHandler {
	return &NotificationHandler{
		dispatcher:  dispatcher,
		userService: userService,
	}
}

// RegisterDevice stores a push token so completion and invite notifications
// can reach this device.
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := resolveAuthenticatedUser(ctx, w, h.userService)
	if !ok {
		return
	}

	var req notification.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if err := h.dispatcher.RegisterDevice(ctx, u.ID, req.Token, req.Platform); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered"})
}
