package uploads

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// keyPattern matches the keys Store produces and nothing else, so directories
// and guessed names are never served.
var keyPattern = regexp.MustCompile(`^uploads/[0-9a-f]{64}(\.[a-z0-9]+)?$`)

// FileHandler serves stored uploads by exact key. Mount it behind a prefix
// strip so the request path is the key.
type FileHandler struct {
	service *Service
	logger  *logging.Logger
}

func NewFileHandler(service *Service, logger *logging.Logger) *FileHandler {
	if service == nil {
		panic("uploads: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FileHandler{service: service, logger: logger}
}

func (h *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !keyPattern.MatchString(key) {
		http.NotFound(w, r)
		return
	}
	data, err := h.service.Load(r.Context(), Reference{Key: key})
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("uploads: load failed", "key", key, "error", err)
		http.Error(w, "failed to load file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", baseType(mimetype.Detect(data).String()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}
