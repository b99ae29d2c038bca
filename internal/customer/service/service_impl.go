package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	UserRepo usermetadomain.Repository
	Provider paymentdomain.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	userRepo usermetadomain.Repository
	provider paymentdomain.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		clock:    p.Clock,
		userRepo: p.UserRepo,
		provider: p.Provider,
	}
}

func (s *Service) Provision(ctx context.Context, req domain.ProvisionRequest) (paymentdomain.Customer, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return paymentdomain.Customer{}, domain.ErrInvalidUserID
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return paymentdomain.Customer{}, domain.ErrInvalidEmail
	}

	customer, err := s.provider.CreateCustomer(ctx, paymentdomain.CustomerRequest{
		IdempotencyKey: uuid.NewString(),
		EmailAddress:   email,
		ReferenceID:    userID,
	})
	if err != nil {
		s.log.Warn("create square customer failed", zap.String("user_id", userID), zap.Error(err))
		return paymentdomain.Customer{}, err
	}

	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return paymentdomain.Customer{}, domain.ErrMissingCustomerID
	}

	// The Square customer stays in place when this write fails.
	if err := s.userRepo.SetCustomerID(ctx, s.db, userID, customerID, s.clock.Now()); err != nil {
		s.log.Error("store square customer id failed",
			zap.String("user_id", userID),
			zap.String("square_customer_id", customerID),
			zap.Error(err),
		)
		return paymentdomain.Customer{}, err
	}

	s.log.Info("square customer provisioned",
		zap.String("user_id", userID),
		zap.String("square_customer_id", customerID),
	)
	return customer, nil
}
