package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/conversation"
	httpmiddleware "github.com/AyushPatel04/dental-chatbot/internal/http/middleware"
	"github.com/AyushPatel04/dental-chatbot/internal/webchat"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebChat             *webchat.Handler
	Appointments        *appointments.Handler
	MetricsHandler      http.Handler
	// Uploads serves stored files under /uploads when the disk backend is used.
	Uploads            http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Uploads != nil {
			public.Handle("/uploads/*", http.StripPrefix("/uploads/", cfg.Uploads))
		}
	})

	// Chat endpoints call the language model, so they are rate limited per client.
	r.Group(func(chat chi.Router) {
		if cfg.RateLimitRPS > 0 {
			chat.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		if cfg.ConversationHandler != nil {
			chat.Post("/chat", cfg.ConversationHandler.Chat)
		}
		if cfg.WebChat != nil {
			cfg.WebChat.Routes(chat)
		}
	})

	if cfg.Appointments != nil {
		r.Group(func(staff chi.Router) {
			staff.Use(middleware.Compress(5))
			staff.Get("/get-appointments", cfg.Appointments.List)
			staff.Get("/appointments", cfg.Appointments.List)
			staff.Get("/appointments/slots", cfg.Appointments.BookedSlots)
			staff.Post("/appointments", cfg.Appointments.Create)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
