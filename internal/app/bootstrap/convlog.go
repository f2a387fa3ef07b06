package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"

	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/internal/convlog"
	"github.com/AyushPatel04/dental-chatbot/internal/observability/metrics"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// BuildConversationLog starts a dispatcher writing to every sink named in
// CONVERSATION_LOG. It returns nil when none is configured.
func BuildConversationLog(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.ChatMetrics, logger *logging.Logger) (*convlog.Dispatcher, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		sinks   []convlog.Sink
		closers []func()
	)
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.ConversationLog {
		switch name {
		case "redis":
			client := BuildRedisClient(ctx, cfg, logger, true)
			if client == nil {
				logger.Warn("conversation log: redis sink disabled", "addr", cfg.RedisAddr)
				continue
			}
			closers = append(closers, func() { _ = client.Close() })
			sinks = append(sinks, convlog.NewRedisSink(client, cfg.ConversationLogTTL))
		case "postgres":
			if cfg.DatabaseURL == "" {
				cleanup()
				return nil, func() {}, fmt.Errorf("bootstrap: postgres conversation log requires DATABASE_URL")
			}
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				cleanup()
				return nil, func() {}, fmt.Errorf("bootstrap: open conversation log db: %w", err)
			}
			closers = append(closers, func() { _ = db.Close() })
			sinks = append(sinks, convlog.NewPostgresSink(db))
		case "sqs":
			if cfg.ConversationLogQueueURL == "" || awsCfg == nil {
				cleanup()
				return nil, func() {}, fmt.Errorf("bootstrap: sqs conversation log requires CONVERSATION_LOG_QUEUE_URL and AWS configuration")
			}
			sinks = append(sinks, convlog.NewSQSSink(sqs.NewFromConfig(*awsCfg), cfg.ConversationLogQueueURL))
		default:
			cleanup()
			return nil, func() {}, fmt.Errorf("bootstrap: unknown conversation log sink %q", name)
		}
	}

	if len(sinks) == 0 {
		return nil, cleanup, nil
	}
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("conversation log enabled", "sinks", names)
	d := convlog.NewDispatcher(convlog.Options{
		QueueSize: cfg.ConversationLogQueue,
		Metrics:   m,
		Logger:    logger,
	}, sinks...)
	return d, cleanup, nil
}
