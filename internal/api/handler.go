package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"repairhub-backend/internal/hub"
	"repairhub-backend/internal/notify"
	"repairhub-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord    *hub.Coordinator
	store    store.Store
	notifier *notify.Notifier
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(coord *hub.Coordinator, s store.Store, notifier *notify.Notifier, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		coord:    coord,
		store:    s,
		notifier: notifier,
		webpush:  webpushOptions,
	}
}
