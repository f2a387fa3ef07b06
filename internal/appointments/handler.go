package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// Handler serves the staff dashboard and direct booking endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// List returns every appointment ordered by day and clock time.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch appointments")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// BookedSlots returns the time slots already taken on ?date=YYYY-MM-DD.
func (h *Handler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	slots, err := h.store.ListByDate(r.Context(), day)
	if err != nil {
		if errors.Is(err, ErrInvalidDay) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to list booked slots", "error", err, "booking_day", day)
		writeError(w, http.StatusInternalServerError, "Failed to fetch booked slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day, "booked": slots})
}

// Create books an appointment from a JSON draft.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appt, err := h.store.Create(r.Context(), draft)
	switch {
	case errors.Is(err, ErrIncompleteDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "That time slot is already booked")
	case err != nil:
		h.logger.Error("failed to create appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save appointment")
	default:
		writeJSON(w, http.StatusCreated, appt)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
