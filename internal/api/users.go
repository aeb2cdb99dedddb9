package api

import (
	"net/http"

	"github.com/opensource-finance/credbud/internal/domain"
)

type userRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	CityTier int    `json:"cityTier"`
}

// RegisterUser handles POST /api/users. The profile is stored under the
// caller's user ID; registering again updates it.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()

	var req userRequest
	if err := decodeValid(r, userSchema, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user := &domain.User{
		ID:       GetUserID(ctx),
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		CityTier: req.CityTier,
	}
	if err := h.repo.SaveUser(ctx, user); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetCurrentUser handles GET /api/users/me.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	user, err := h.repo.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
