package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	u, err := h.userService.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		} else {
			log.Error().Err(err).Msg("get user")
			writeInternal(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("get me")
		writeInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
