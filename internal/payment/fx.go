package payment

import (
	"context"
	"time"

	"github.com/smallbiznis/loadpass/internal/config"
	"github.com/smallbiznis/loadpass/internal/payment/adapters"
	"github.com/smallbiznis/loadpass/internal/payment/adapters/square"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	"github.com/smallbiznis/loadpass/internal/payment/repository"
	paymentservice "github.com/smallbiznis/loadpass/internal/payment/service"
	"github.com/smallbiznis/loadpass/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const replayTimeout = 2 * time.Minute

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			adapters.ConfigsFromConfig(cfg),
			square.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
	fx.Invoke(RegisterReplay),
)

// RegisterReplay sweeps unprocessed Square deliveries once after startup.
func RegisterReplay(lc fx.Lifecycle, cfg config.Config, svc paymentdomain.Service, log *zap.Logger) {
	if !cfg.PaymentReplay.OnStart {
		return
	}
	log = log.Named("payment.replay")

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				summary, err := svc.ReplayPending(ctx, paymentdomain.ProviderSquare, cfg.PaymentReplay.BatchSize)
				if err != nil {
					log.Warn("payment replay aborted", zap.Error(err))
					return
				}
				if summary.Scanned > 0 {
					log.Info("payment replay finished",
						zap.Int("scanned", summary.Scanned),
						zap.Int("processed", summary.Processed),
						zap.Int("failed", summary.Failed),
					)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
