package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const defaultMaxBytes = 5 << 20

// Kind groups accepted MIME types.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

var allowedTypes = map[string]Kind{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/webp":      KindImage,
	"image/heic":      KindImage,
	"image/gif":       KindImage,
	"application/pdf": KindDocument,
}

// Limits bounds accepted file sizes per kind.
type Limits struct {
	MaxImageBytes    int64
	MaxDocumentBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxImageBytes <= 0 {
		l.MaxImageBytes = defaultMaxBytes
	}
	if l.MaxDocumentBytes <= 0 {
		l.MaxDocumentBytes = defaultMaxBytes
	}
	return l
}

func (l Limits) max(kind Kind) int64 {
	if kind == KindDocument {
		return l.MaxDocumentBytes
	}
	return l.MaxImageBytes
}

// Reference points at a stored file.
type Reference struct {
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mimeType"`
	Kind     Kind   `json:"kind"`
	Size     int64  `json:"size"`
	Name     string `json:"name,omitempty"`
}

// IsImage reports whether the reference is an image.
func (r Reference) IsImage() bool { return r.Kind == KindImage }

// Service validates and stores uploaded files.
type Service struct {
	blob          Blob
	limits        Limits
	publicBaseURL string
	logger        *logging.Logger
}

func NewService(blob Blob, limits Limits, publicBaseURL string, logger *logging.Logger) *Service {
	if blob == nil {
		panic("uploads: blob store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		blob:          blob,
		limits:        limits.withDefaults(),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Limits returns the effective size limits.
func (s *Service) Limits() Limits { return s.limits }

// Store sniffs the content type, enforces limits and writes the file under a
// content-addressed key. Identical bytes map to the same key.
func (s *Service) Store(ctx context.Context, filename string, data []byte) (Reference, error) {
	if len(data) == 0 {
		return Reference{}, invalid("file is empty")
	}
	detected := mimetype.Detect(data)
	mimeType := baseType(detected.String())
	kind, ok := allowedTypes[mimeType]
	if !ok {
		return Reference{}, invalid("unsupported file type %s; please upload a JPEG, PNG, WEBP, HEIC, GIF or PDF", mimeType)
	}
	if limit := s.limits.max(kind); int64(len(data)) > limit {
		return Reference{}, invalid("file is too large (%s); the limit is %s", humanBytes(int64(len(data))), humanBytes(limit))
	}

	sum := sha256.Sum256(data)
	key := "uploads/" + hex.EncodeToString(sum[:]) + detected.Extension()
	if err := s.blob.Put(ctx, key, mimeType, data); err != nil {
		return Reference{}, fmt.Errorf("uploads: store %s: %w", key, err)
	}

	ref := Reference{
		Key:      key,
		MIMEType: mimeType,
		Kind:     kind,
		Size:     int64(len(data)),
		Name:     strings.TrimSpace(filename),
	}
	if s.publicBaseURL != "" {
		ref.URL = s.publicBaseURL + "/" + key
	}
	s.logger.Info("upload stored", "key", key, "mime_type", mimeType, "size", ref.Size)
	return ref, nil
}

// Load returns the stored bytes of ref.
func (s *Service) Load(ctx context.Context, ref Reference) ([]byte, error) {
	if ref.Key == "" {
		return nil, ErrNotFound
	}
	return s.blob.Get(ctx, ref.Key)
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

func humanBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib {
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
	return fmt.Sprintf("%d KB", (n+1023)/1024)
}
