package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AyushPatel04/dental-chatbot/internal/api/router"
	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/internal/conversation"
	"github.com/AyushPatel04/dental-chatbot/internal/convlog"
	"github.com/AyushPatel04/dental-chatbot/internal/notify"
	"github.com/AyushPatel04/dental-chatbot/internal/observability/metrics"
	"github.com/AyushPatel04/dental-chatbot/internal/pricing"
	"github.com/AyushPatel04/dental-chatbot/internal/webchat"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// Runtime is the wired chatbot: the HTTP handler and what must be drained on shutdown.
type Runtime struct {
	Handler  http.Handler
	Sessions *webchat.Registry

	convLog       *convlog.Dispatcher
	confirmations *notify.BookingConfirmations
	cleanups      []func()
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	switch {
	case cfg.BedrockModelID != "",
		cfg.AppointmentStore == "dynamo" || cfg.AppointmentStore == "dynamodb",
		cfg.UploadBackend == "s3",
		cfg.EmailProvider == "ses",
		cfg.UsesConversationLog("sqs"):
		return true
	}
	return false
}

// BuildRuntime wires every collaborator from cfg. awsCfg may be nil when
// NeedsAWS is false.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, reg *prometheus.Registry, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		rt.cleanup()
		return nil, err
	}

	chatMetrics := metrics.NewChatMetrics(reg)

	table := pricing.DefaultTable()
	if cfg.CostTablePath != "" {
		loaded, err := pricing.LoadTable(cfg.CostTablePath)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: %w", err))
		}
		table = loaded
		logger.Info("cost table loaded", "path", cfg.CostTablePath, "procedures", len(table))
	}

	llm, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}

	store, closeStore, err := BuildAppointmentStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.cleanups = append(rt.cleanups, closeStore)

	uploadService, uploadFiles, err := BuildUploads(cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}

	convLog, closeLog, err := BuildConversationLog(ctx, cfg, awsCfg, chatMetrics, logger)
	if err != nil {
		return fail(err)
	}
	rt.cleanups = append(rt.cleanups, closeLog)
	rt.convLog = convLog

	sender, err := BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.confirmations = notify.NewBookingConfirmations(sender, cfg.ClinicName, logger)

	replies := conversation.NewReplyService(llm, conversation.NewTopicClassifier(llm), uploadService, cfg.ClinicName, logger)
	deps := chatflow.Dependencies{
		Replies:             replies,
		Extractor:           conversation.NewCardExtractor(llm, uploadService, logger),
		Uploads:             uploadService,
		Appointments:        store,
		Notifier:            rt.confirmations,
		Engine:              pricing.NewEngine(table),
		TimeSlots:           cfg.BookingTimeSlots,
		ClinicName:          cfg.ClinicName,
		PreregistrationURL:  cfg.PreregistrationURL,
		OnlineBookingURL:    cfg.OnlineBookingURL,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
		Metrics:             chatMetrics,
		Logger:              logger,
	}
	if convLog != nil {
		deps.Transcripts = convLog
	}

	rt.Sessions = webchat.NewRegistry(deps, cfg.SessionIdleTTL, logger)
	maxUpload := cfg.UploadMaxDocumentBytes
	if cfg.UploadMaxImageBytes > maxUpload {
		maxUpload = cfg.UploadMaxImageBytes
	}

	rt.Handler = router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(replies, logger),
		WebChat:             webchat.NewHandler(rt.Sessions, maxUpload, logger),
		Appointments:        appointments.NewHandler(store, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Uploads:             uploadFiles,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	})
	return rt, nil
}

// Close drains pending confirmation emails and conversation log entries, then
// releases connections.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.confirmations != nil {
		if err := rt.confirmations.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("confirmation emails: %w", err))
		}
	}
	if rt.convLog != nil {
		if err := rt.convLog.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("conversation log: %w", err))
		}
	}
	rt.cleanup()
	return errors.Join(errs...)
}

func (rt *Runtime) cleanup() {
	for i := len(rt.cleanups) - 1; i >= 0; i-- {
		rt.cleanups[i]()
	}
	rt.cleanups = nil
}
