package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avelkar/aria/backend/models"
	"github.com/avelkar/aria/backend/repository"
)

// ProfileEndpoints serves profile, preference, transcript and account-deletion
// routes for the logged-in user.
type ProfileEndpoints struct {
	repo     *repository.GORMRepository
	chatRepo *repository.ChatLogRepository
	agents   *AgentClient
	personas *PersonaStore
}

func NewProfileEndpoints(repo *repository.GORMRepository, chatRepo *repository.ChatLogRepository, agents *AgentClient, personas *PersonaStore) *ProfileEndpoints {
	return &ProfileEndpoints{
		repo:     repo,
		chatRepo: chatRepo,
		agents:   agents,
		personas: personas,
	}
}

func (e *ProfileEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Get("/", e.GetProfileHandler)
		r.Patch("/", e.UpdateProfileHandler)
		r.Patch("/preference", e.UpdatePreferenceHandler)
		r.Get("/preference", e.GetPreferenceHandler)
	})
	r.Get("/chat/history", e.ChatHistoryHandler)
	r.Get("/personas", e.PersonasHandler)
	r.Delete("/account", e.DeleteAccountHandler)
}

// contextUser extracts the authenticated user placed in the request context by
// the auth middleware.
func contextUser(r *http.Request) *models.User {
	user, _ := r.Context().Value("user").(*models.User)
	return user
}

func (e *ProfileEndpoints) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"user": user})
}

// UpdateProfileRequest mirrors repository.ProfileUpdate on the wire: a field
// left out of the body means "leave unchanged".
type UpdateProfileRequest struct {
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Address   *string  `json:"address,omitempty"`
	City      *string  `json:"city,omitempty"`
	State     *string  `json:"state,omitempty"`
	Zip       *string  `json:"zip,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  *string  `json:"timezone,omitempty"`
	Gender    *string  `json:"gender,omitempty"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
}

func (e *ProfileEndpoints) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	update := &repository.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
		City:      req.City,
		State:     req.State,
		Zip:       req.Zip,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timezone:  req.Timezone,
		Gender:    req.Gender,
		AvatarURL: req.AvatarURL,
	}
	if err := e.repo.UpdateProfile(r.Context(), user.ID, update); err != nil {
		slog.Error("Profile update failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Profile updated"})
}

type UpdatePreferenceRequest struct {
	ThemeMode *string `json:"theme_mode,omitempty"`
	Persona   *string `json:"persona,omitempty"`
}

func (e *ProfileEndpoints) UpdatePreferenceHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req UpdatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ThemeMode != nil && *req.ThemeMode != "light" && *req.ThemeMode != "dark" {
		http.Error(w, "Invalid theme mode", http.StatusBadRequest)
		return
	}

	if err := e.repo.UpdatePreference(r.Context(), user.ID, &repository.PreferenceUpdate{
		ThemeMode: req.ThemeMode,
		Persona:   req.Persona,
	}); err != nil {
		slog.Error("Preference update failed", "error", err, "user_id", user.ID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Preference updated"})
}

func (e *ProfileEndpoints) GetPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	pref, err := e.repo.GetPreference(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to load preference", "error", err, "user_id", user.ID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"preference": pref})
}

// ChatHistoryHandler returns the same sorted transcript the realtime join
// replays, over plain HTTP.
func (e *ProfileEndpoints) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	history, err := e.chatRepo.History(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", user.ID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func (e *ProfileEndpoints) PersonasHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"personas": e.personas.Keys(),
		"default":  e.personas.DefaultKey(),
	})
}

// DeleteAccountHandler removes the user's rows, chat documents and, best
// effort, their provisioned agents. There is no compensating rollback for a
// partial failure; each step logs and continues.
func (e *ProfileEndpoints) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if e.agents != nil {
		bindings, err := e.chatRepo.ListBindings(r.Context(), user.ID)
		if err != nil {
			slog.Error("Failed to list agent bindings for deletion", "error", err, "user_id", user.ID)
		}
		for _, binding := range bindings {
			if err := e.agents.Deprovision(r.Context(), binding.AgentID); err != nil {
				slog.Error("Agent deprovision failed", "error", err, "user_id", user.ID, "agent_id", binding.AgentID)
			}
		}
	}

	if err := e.chatRepo.DeleteUserData(r.Context(), user.ID); err != nil {
		slog.Error("Failed to delete chat data", "error", err, "user_id", user.ID)
	}

	if err := e.repo.DeleteUser(r.Context(), user.ID); err != nil {
		slog.Error("Failed to delete user", "error", err, "user_id", user.ID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Account deleted"})

	slog.Info("Account deleted", "user_id", user.ID)
}
