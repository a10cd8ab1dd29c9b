package events

import (
	"context"

	"github.com/agnuslink/agnuslink/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher wires the kafka pipeline when brokers are configured and
// falls back to the in-process dispatcher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, handler Handler, log *zap.Logger) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		dispatcher := NewDispatcher(handler, log)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				dispatcher.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				dispatcher.Stop()
				return nil
			},
		})
		return dispatcher
	}

	publisher := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaLeadTopic)
	consumer := NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaLeadTopic, cfg.KafkaConsumerGrp, handler, log)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go consumer.Run(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				return err
			}
			return publisher.Close()
		},
	})
	return publisher
}
