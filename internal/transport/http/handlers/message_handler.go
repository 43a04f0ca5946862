package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/repository"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateMessage(input.Content, input.ClientID); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, channelID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent):
			writeError(w, http.StatusBadRequest, "MISSING_CONTENT", "Message content is required")
		case errors.Is(err, service.ErrSendInFlight):
			writeError(w, http.StatusConflict, "SEND_IN_FLIGHT", "A send with this client id is still in progress")
		default:
			writeChannelError(w, err, "send message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List pages backward. before is an RFC 3339 timestamp, before_id breaks ties.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	q := r.URL.Query()
	var before *repository.MessageCursor
	if beforeStr := q.Get("before"); beforeStr != "" {
		ts, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid before cursor")
			return
		}
		before = &repository.MessageCursor{CreatedAt: ts}
		if idStr := q.Get("before_id"); idStr != "" {
			id, err := uuid.Parse(idStr)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid before_id cursor")
				return
			}
			before.ID = id
		}
	}

	limit := service.DefaultPageSize
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= service.MaxPageSize {
			limit = l
		}
	}

	resp, err := h.messageService.List(r.Context(), userID, channelID, before, limit)
	if err != nil {
		writeChannelError(w, err, "list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
