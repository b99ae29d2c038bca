package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/loadpass/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	paymentservice "github.com/smallbiznis/loadpass/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		s.log.Error("payment webhook adapter unavailable", zap.String("provider", provider), zap.Error(err))
		return paymentdomain.IngestResult{}, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.String("provider", provider))
		return paymentdomain.IngestResult{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("payment webhook ignored", zap.String("provider", provider))
			return paymentdomain.IngestResult{Outcome: paymentdomain.OutcomeIgnored}, nil
		}
		return paymentdomain.IngestResult{}, err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.paymentSvc.ProcessEvent(ctx, event, payload)
}

// ReplayPending re-runs deliveries that were stored but never processed. The payloads were verified on
// receipt, so only parsing is repeated. A failing delivery is counted and left for the next sweep.
func (s *Service) ReplayPending(ctx context.Context, provider string, limit int) (paymentdomain.ReplaySummary, error) {
	var summary paymentdomain.ReplaySummary

	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return summary, err
	}

	pending, err := s.paymentSvc.PendingDeliveries(ctx, provider, limit)
	if err != nil {
		return summary, err
	}

	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		payload := []byte(record.Payload)
		event, err := adapter.Parse(ctx, payload)
		if err != nil {
			summary.Failed++
			s.log.Warn("stored payment event unparsable",
				zap.String("provider_event_id", record.ProviderEventID),
				zap.Error(err),
			)
			continue
		}
		event.Provider = provider
		event.RawPayload = payload

		if _, err := s.paymentSvc.ProcessEvent(ctx, event, payload); err != nil {
			summary.Failed++
			s.log.Warn("payment event replay failed",
				zap.String("provider_event_id", record.ProviderEventID),
				zap.String("payment_id", event.PaymentID),
				zap.Error(err),
			)
			continue
		}
		summary.Processed++
	}
	return summary, nil
}
