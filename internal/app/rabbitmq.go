package app

import (
	"github.com/sirupsen/logrus"

	"ridecore/internal/config"
	"ridecore/internal/rabbitmq"
	"ridecore/internal/service"
)

// NewNotifier returns the broker-backed notifier when RabbitMQ is
// configured and a log-only notifier otherwise. The returned close func is
// never nil.
func NewNotifier(cfg config.RabbitMQConfig, logger logrus.FieldLogger) (service.Notifier, func() error, error) {
	if cfg.URL == "" {
		logger.Info("RabbitMQ not configured, ride events are logged only")
		return service.NewLogNotifier(logger), func() error { return nil }, nil
	}

	client, err := rabbitmq.Dial(rabbitmq.Config{
		URL:            cfg.URL,
		Exchange:       cfg.Exchange,
		PublishTimeout: cfg.PublishTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	logger.WithField("exchange", cfg.Exchange).Info("connected to RabbitMQ")
	return rabbitmq.NewNotifier(client), client.Close, nil
}
