package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	appconfig "github.com/AyushPatel04/dental-chatbot/internal/config"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// BuildAppointmentStore returns the configured store wrapped in the traced
// service, plus a cleanup func for its connections.
func BuildAppointmentStore(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*appointments.Service, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.AppointmentStore {
	case "memory", "":
		logger.Warn("using in-memory appointment store; bookings are lost on restart")
		return appointments.NewService(appointments.NewMemoryStore(), logger), noop, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, noop, fmt.Errorf("bootstrap: APPOINTMENT_STORE=postgres requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		logger.Info("using postgres appointment store")
		return appointments.NewService(appointments.NewPostgresStore(pool), logger), pool.Close, nil
	case "dynamo", "dynamodb":
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: APPOINTMENT_STORE=dynamo requires AWS configuration")
		}
		logger.Info("using dynamodb appointment store", "table", cfg.AppointmentsTable)
		store := appointments.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), cfg.AppointmentsTable)
		return appointments.NewService(store, logger), noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown APPOINTMENT_STORE %q", cfg.AppointmentStore)
	}
}
