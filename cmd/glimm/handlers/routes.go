package handlers

import (
	"net/http"
)

// NewRouter registers the API routes. metrics may be nil.
func NewRouter(exportHandler *ExportHandler, reminderHandler *ReminderHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", Health)

	mux.HandleFunc("/api/export", exportHandler.Export)
	mux.HandleFunc("/api/import", exportHandler.Import)
	mux.HandleFunc("/api/export/status", exportHandler.ExportStatus)

	mux.HandleFunc("/api/reminders", reminderHandler.List)
	mux.HandleFunc("/api/reminders/rearm", reminderHandler.Rearm)

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
