package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const defaultIdleTTL = 2 * time.Hour

// Registry holds the live chat sessions of this process.
type Registry struct {
	deps    chatflow.Dependencies
	idleTTL time.Duration
	now     func() time.Time
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*chatflow.Session
}

func NewRegistry(deps chatflow.Dependencies, idleTTL time.Duration, logger *logging.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		deps:     deps,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[string]*chatflow.Session),
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// Create starts a new session with a greeting.
func (r *Registry) Create() *chatflow.Session {
	s := chatflow.NewSession(generateSessionID(), r.deps)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	r.logger.Info("webchat: session started", "session_id", s.ID())
	return s
}

func (r *Registry) Get(id string) (*chatflow.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune forgets sessions idle for longer than the idle TTL and returns how many went.
func (r *Registry) Prune() int {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		r.logger.Info("webchat: idle sessions pruned", "count", pruned, "remaining", len(r.sessions))
	}
	return pruned
}

// RunPruner prunes every interval until ctx is done.
func (r *Registry) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTTL / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune()
		}
	}
}
