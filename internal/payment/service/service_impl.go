package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
	"github.com/smallbiznis/loadpass/internal/clock"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/loadpass/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	providerdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	"github.com/smallbiznis/loadpass/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         paymentdomain.Repository
	CheckoutRepo checkoutdomain.Repository
	CreditSvc    creditdomain.Service
	Provider     providerdomain.Provider
	Limiter      *ratelimit.Limiter  `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         paymentdomain.Repository
	checkoutRepo checkoutdomain.Repository
	creditSvc    creditdomain.Service
	provider     providerdomain.Provider
	limiter      *ratelimit.Limiter
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		checkoutRepo: p.CheckoutRepo,
		creditSvc:    p.CreditSvc,
		provider:     p.Provider,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
	}
}

// PendingDeliveries returns stored deliveries that have not been marked processed, oldest first.
func (s *Service) PendingDeliveries(ctx context.Context, provider string, limit int) ([]paymentdomain.EventRecord, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	return s.repo.ListUnprocessed(ctx, s.db, provider, limit)
}

// ProcessEvent stores the delivery, grants the purchased loads, then marks the delivery processed.
// An unprocessed delivery is picked up again on redelivery. The grant is keyed by payment id.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) (paymentdomain.IngestResult, error) {
	if event == nil {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.IngestResult{}, paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return paymentdomain.IngestResult{}, err
	}

	result := paymentdomain.IngestResult{
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		PaymentID:       event.PaymentID,
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	stored, inserted, err := s.repo.RecordDelivery(ctx, s.db, &received)
	if err != nil {
		return result, err
	}
	if stored.ProcessedAt != nil {
		result.Outcome = paymentdomain.OutcomeAlreadyProcessed
		return result, nil
	}

	token, locked, err := s.limiter.TryLockPayment(ctx, event.Provider, event.PaymentID)
	if err != nil {
		return result, err
	}
	if !locked {
		return result, paymentdomain.ErrPaymentInProgress
	}
	defer func() {
		if err := s.limiter.ReleasePayment(context.WithoutCancel(ctx), event.Provider, event.PaymentID, token); err != nil {
			s.log.Warn("release payment lock failed", zap.String("payment_id", event.PaymentID), zap.Error(err))
		}
	}()

	grant, err := s.grant(ctx, event)
	switch {
	case errors.Is(err, creditdomain.ErrAlreadyGranted):
		s.log.Info("payment already granted", zap.String("payment_id", event.PaymentID))
	case err != nil:
		s.log.Error("payment grant failed",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("payment_id", event.PaymentID),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return result, err
	default:
		result.UserID = grant.UserID
		result.LoadsGranted = grant.LoadsGranted
	}

	closed, err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now())
	if err != nil {
		return result, err
	}
	if !closed {
		s.log.Debug("payment event closed concurrently", zap.String("provider_event_id", event.ProviderEventID))
	}

	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	result.Outcome = paymentdomain.OutcomeProcessed
	return result, nil
}

// grant attributes the payment through the pending transaction recorded at checkout.
// Orders created outside this service fall back to the order's first line item and
// the payment's customer id.
func (s *Service) grant(ctx context.Context, event *paymentdomain.PaymentEvent) (creditdomain.GrantResult, error) {
	req := creditdomain.GrantRequest{
		CustomerID: event.CustomerID,
		PaymentID:  event.PaymentID,
		OrderID:    event.OrderID,
		Source:     creditdomain.SourceWebhook,
	}

	var pending *checkoutdomain.PendingTransaction
	if event.OrderID != "" {
		found, err := s.checkoutRepo.FindByOrderID(ctx, s.db, event.OrderID)
		if err != nil {
			return creditdomain.GrantResult{}, err
		}
		pending = found
	}

	if pending != nil {
		req.UserID = pending.UserID
		req.VariationID = pending.SquareVariationID
	} else {
		if event.OrderID == "" {
			return creditdomain.GrantResult{}, paymentdomain.ErrUnattributedPayment
		}
		order, err := s.provider.RetrieveOrder(ctx, event.OrderID)
		if err != nil {
			return creditdomain.GrantResult{}, err
		}
		req.VariationID = order.FirstVariationID()
		if req.CustomerID == "" {
			req.CustomerID = order.CustomerID
		}
		if req.VariationID == "" || req.CustomerID == "" {
			return creditdomain.GrantResult{}, paymentdomain.ErrUnattributedPayment
		}
	}

	result, grantErr := s.creditSvc.Grant(ctx, req)
	if grantErr != nil && !errors.Is(grantErr, creditdomain.ErrAlreadyGranted) {
		return creditdomain.GrantResult{}, grantErr
	}

	if pending != nil && pending.Status != checkoutdomain.StatusCompleted {
		if _, err := s.checkoutRepo.MarkCompleted(ctx, s.db, pending.SquareOrderID, s.clock.Now()); err != nil {
			return creditdomain.GrantResult{}, err
		}
	}
	return result, grantErr
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.PaymentID = strings.TrimSpace(event.PaymentID)
	if event.PaymentID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.Status != paymentdomain.PaymentStatusCompleted {
		return paymentdomain.ErrEventIgnored
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	event.CustomerID = strings.TrimSpace(event.CustomerID)
	return nil
}
