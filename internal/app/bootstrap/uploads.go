package bootstrap

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// BuildUploads returns the upload service and, for the disk backend, a handler
// serving stored files by exact key.
func BuildUploads(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*uploads.Service, http.Handler, error) {
	limits := uploads.Limits{
		MaxImageBytes:    cfg.UploadMaxImageBytes,
		MaxDocumentBytes: cfg.UploadMaxDocumentBytes,
	}

	switch cfg.UploadBackend {
	case "disk", "":
		blob, err := uploads.NewDiskBlob(cfg.UploadDir)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		service := uploads.NewService(blob, limits, cfg.UploadPublicBaseURL, logger)
		return service, uploads.NewFileHandler(service, logger), nil
	case "s3":
		if cfg.UploadBucket == "" || awsCfg == nil {
			return nil, nil, fmt.Errorf("bootstrap: UPLOAD_BACKEND=s3 requires UPLOAD_BUCKET and AWS configuration")
		}
		client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
			if strings.TrimSpace(cfg.AWSEndpointOverride) != "" {
				o.UsePathStyle = true
			}
		})
		return uploads.NewService(uploads.NewS3Blob(client, cfg.UploadBucket), limits, cfg.UploadPublicBaseURL, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown UPLOAD_BACKEND %q", cfg.UploadBackend)
	}
}
