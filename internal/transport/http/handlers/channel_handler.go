package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type ChannelHandler struct {
	channelService *service.ChannelService
}

func NewChannelHandler(channelService *service.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService}
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateChannelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateChannel(input.Name); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	ch, err := h.channelService.Create(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChannelNameTaken):
			writeError(w, http.StatusConflict, "NAME_TAKEN", "Channel name already exists")
		case errors.Is(err, service.ErrReservedName):
			writeError(w, http.StatusBadRequest, "RESERVED_NAME", "Names starting with dm- are reserved")
		case errors.Is(err, service.ErrInvalidDMName):
			writeError(w, http.StatusBadRequest, "INVALID_DM_NAME", "Direct message name is not canonical")
		default:
			log.Error().Err(err).Msg("create channel")
			writeInternal(w)
		}
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	channels, err := h.channelService.List(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("list channels")
		writeInternal(w)
		return
	}

	writeJSON(w, http.StatusOK, channels)
}

// Lookup resolves ?name=&private= to a single channel.
func (h *ChannelHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "Query parameter name is required")
		return
	}
	private, _ := strconv.ParseBool(r.URL.Query().Get("private"))

	ch, err := h.channelService.Lookup(r.Context(), userID, name, private)
	if err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		} else {
			log.Error().Err(err).Msg("lookup channel")
			writeInternal(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	ch, err := h.channelService.GetByID(r.Context(), userID, channelID)
	if err != nil {
		writeChannelError(w, err, "get channel")
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	if err := h.channelService.Delete(r.Context(), userID, channelID); err != nil {
		if errors.Is(err, service.ErrNotChannelAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the channel creator can delete it")
			return
		}
		writeChannelError(w, err, "delete channel")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	targetID, err := uuid.Parse(body.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	if err := h.channelService.AddMember(r.Context(), requesterID, channelID, targetID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotChannelAdmin):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only channel admin can add members")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		default:
			writeChannelError(w, err, "add channel member")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	members, err := h.channelService.ListMembers(r.Context(), userID, channelID)
	if err != nil {
		writeChannelError(w, err, "list channel members")
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func writeChannelError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
	case errors.Is(err, service.ErrNotChannelMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
	default:
		log.Error().Err(err).Msg(op)
		writeInternal(w)
	}
}
