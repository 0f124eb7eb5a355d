package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kimhsiao/glimm/backend/internal/db"
	"github.com/kimhsiao/glimm/backend/internal/models"
)

// ReminderDispatcher is the part of notify.Dispatcher the API drives.
type ReminderDispatcher interface {
	Rearm(ctx context.Context, window models.ReminderWindow) (int, error)
	Pending() []time.Time
}

// ReminderHandler exposes the armed reminder schedule.
type ReminderHandler struct {
	dispatcher ReminderDispatcher
	settings   db.SettingsRepository
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(dispatcher ReminderDispatcher, settings db.SettingsRepository) *ReminderHandler {
	return &ReminderHandler{dispatcher: dispatcher, settings: settings}
}

// RemindersResponse lists pending reminder times.
type RemindersResponse struct {
	Count   int      `json:"count"`
	Pending []string `json:"pending"`
}

// List handles GET /api/reminders
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse(h.dispatcher.Pending()))
}

// Rearm handles POST /api/reminders/rearm
// Recomputes the schedule from the stored settings.
func (h *ReminderHandler) Rearm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	settings, err := h.settings.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.dispatcher.Rearm(r.Context(), settings.Reminders); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse(h.dispatcher.Pending()))
}

func pendingResponse(times []time.Time) RemindersResponse {
	out := RemindersResponse{Count: len(times), Pending: make([]string, 0, len(times))}
	for _, t := range times {
		out.Pending = append(out.Pending, t.Format(time.RFC3339))
	}
	return out
}
