package api

import (
	"errors"
	"net/http"

	"github.com/sydlexius/scanarr/internal/notify"
	"github.com/sydlexius/scanarr/internal/settings"
)

// handleGetSettings returns the stored settings with the bot token masked.
// GET /api/v1/settings
func (r *Router) handleGetSettings(w http.ResponseWriter, req *http.Request) {
	s, err := r.settings.Get(req.Context())
	if err != nil {
		r.logger.Error("loading settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, settings.Masked(s))
}

// handleUpdateSettings replaces the stored settings. A masked bot token
// keeps the stored one. Running scans keep the settings they started with.
// PUT /api/v1/settings
func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) {
	var body settings.Settings
	if err := decodeBody(req, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := r.settings.Get(req.Context())
	if err != nil {
		r.logger.Error("loading settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	saved, err := r.settings.Save(req.Context(), settings.Unmask(body, current))
	if errors.Is(err, settings.ErrValidation) {
		writeValidation(w, err)
		return
	}
	if err != nil {
		r.logger.Error("saving settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if r.scheduler != nil && saved.ScanFrequencyHours != current.ScanFrequencyHours {
		r.scheduler.Reschedule()
	}
	r.logger.Info("settings updated", "scan_folders", len(saved.ScanFolders), "custom_rules", len(saved.CustomRules))
	writeJSON(w, http.StatusOK, settings.Masked(saved))
}

// handleTestNotification sends a test message to every configured channel.
// The body may carry an unsaved notification config to try before saving.
// POST /api/v1/notifications/test
func (r *Router) handleTestNotification(w http.ResponseWriter, req *http.Request) {
	current, err := r.settings.Get(req.Context())
	if err != nil {
		r.logger.Error("loading settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	cfg := current.Notification
	var body *notify.Config
	if err := decodeBody(req, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body != nil {
		cfg = *body
		if cfg.Telegram.BotToken == settings.MaskedToken {
			cfg.Telegram.BotToken = current.Notification.Telegram.BotToken
		}
	}

	err = r.dispatcher.SendTest(req.Context(), cfg)
	switch {
	case errors.Is(err, notify.ErrNoChannels):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		r.logger.Warn("test notification failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	}
}
