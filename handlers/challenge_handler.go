package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/challenge"
	"spottedAPI/middleware"
	"spottedAPI/services"
)

type ChallengeHandler struct {
	challengeService   *services.ChallengeService
	inviteService      *services.InviteService
	participantService *services.ParticipantService
	userService        *services.UserService
}

func NewChallengeHandler(challengeService *services.ChallengeService, inviteService *services.InviteService, participantService *services.ParticipantService, userService *services.UserService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService:   challengeService,
		inviteService:      inviteService,
		participantService: participantService,
		userService:        userService,
	}
}

// GetChallenges returns every challenge the authenticated user participates in.
func (h *ChallengeHandler) GetChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	challenges, err := h.challengeService.FindAllForUser(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if challenges == nil {
		challenges = []challenge.Challenge{}
	}

	respondWithJSON(w, http.StatusOK, challenge.ChallengesResponse{Challenges: challenges})
}

// GetChallenge returns one challenge view. Only participants and invitees may
// look at it.
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge ID")
		return
	}

	c, err := h.challengeService.FindByID(ctx, challengeID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if c == nil {
		respondWithError(w, http.StatusNotFound, "Challenge not found")
		return
	}

	isParticipant, err := h.participantService.IsParticipant(ctx, challengeID, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if !isParticipant {
		invite, err := h.inviteService.FindByChallengeAndUser(ctx, challengeID, u.ID)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		if invite == nil {
			respondWithServiceError(w, apperrors.Forbidden("you don't have access to this challenge"))
			return
		}
	}

	respondWithJSON(w, http.StatusOK, challenge.ChallengeResponse{Challenge: c})
}

// CreateChallenge creates the challenge with the caller as first participant
// and fans out invites to the listed usernames. Unknown usernames are skipped.
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	var req challenge.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.challengeService.Create(ctx, req.Name, req.Description, req.StartDate, req.EndDate, req.TargetDuration, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	for _, username := range req.InvitedUsernames {
		invited, err := h.userService.FindByUsername(ctx, username)
		if err != nil {
			log.Printf("CreateChallenge: failed to resolve username %q: %v", username, err)
			continue
		}
		if invited == nil {
			continue
		}
		if _, err := h.inviteService.Create(ctx, created.ID, invited.ID, u.ID); err != nil {
			log.Printf("CreateChallenge: failed to invite %q to challenge %s: %v", username, created.ID, err)
		}
	}

	respondWithJSON(w, http.StatusCreated, challenge.ChallengeResponse{Challenge: created})
}

// GetInvites lists the authenticated user's pending invites.
func (h *ChallengeHandler) GetInvites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	invites, err := h.inviteService.FindAllForUser(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if invites == nil {
		invites = []challenge.Invite{}
	}

	respondWithJSON(w, http.StatusOK, challenge.InvitesResponse{Invites: invites})
}

// RespondToInvite consumes the invite; acceptance joins the challenge.
func (h *ChallengeHandler) RespondToInvite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	var req challenge.RespondToInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.inviteService.Respond(ctx, req.ChallengeID, u.ID, req.Accepted); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Invite processed"})
}

// LeaveChallenge removes the caller from the participant set. Their historical
// contribution stays in the challenge total.
func (h *ChallengeHandler) LeaveChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := h.authenticatedUser(ctx, w)
	if !ok {
		return
	}

	challengeID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge ID")
		return
	}

	removed, err := h.participantService.Remove(ctx, challengeID, u.ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if !removed {
		respondWithError(w, http.StatusConflict, "You are not a participant in this challenge")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Left challenge"})
}

func (h *ChallengeHandler) authenticatedUser(ctx context.Context, w http.ResponseWriter) (*authedUser, bool) {
	return resolveAuthenticatedUser(ctx, w, h.userService)
}

type authedUser struct {
	ID uuid.UUID
}

func resolveAuthenticatedUser(ctx context.Context, w http.ResponseWriter, users *services.UserService) (*authedUser, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}

	u, err := users.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		// A directory miss is a 404, anything else stays a server error.
		respondWithServiceError(w, err)
		return nil, false
	}

	return &authedUser{ID: u.ID}, true
}

// Helper functions

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError translates the service error taxonomy into status
// codes. Integrity violations surface as 500s on purpose, they indicate
// corrupted data a retry cannot fix.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.CodeValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case apperrors.Is(err, apperrors.CodeNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case apperrors.Is(err, apperrors.CodeForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case apperrors.Is(err, apperrors.CodeConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
