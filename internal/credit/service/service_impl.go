package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/loadpass/internal/observability/metrics"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"github.com/smallbiznis/loadpass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	UserRepo    usermetadomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	userRepo    usermetadomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("credit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		userRepo:    p.UserRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

// Grant credits the package's loads to the paying user. Every read and write runs
// in one transaction so a replayed payment id can never credit twice.
func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (domain.GrantResult, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.VariationID = strings.TrimSpace(req.VariationID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.OrderID = strings.TrimSpace(req.OrderID)

	if (req.CustomerID == "" && req.UserID == "") || req.VariationID == "" {
		return domain.GrantResult{}, domain.ErrMissingGrantFields
	}
	switch req.Source {
	case "":
		req.Source = domain.SourceCallback
	case domain.SourceCallback, domain.SourceWebhook:
	default:
		return domain.GrantResult{}, domain.ErrInvalidSource
	}

	now := s.clock.Now()
	result := domain.GrantResult{PaymentID: req.PaymentID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.PaymentID != "" {
			recorded, err := s.repo.PaymentRecorded(ctx, tx, req.PaymentID)
			if err != nil {
				return err
			}
			if recorded {
				return domain.ErrAlreadyGranted
			}
		}

		pkg, err := s.catalogRepo.FindByVariationID(ctx, tx, req.VariationID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return catalogdomain.ErrPackageNotFound
		}

		user, err := s.resolveUser(ctx, tx, req)
		if err != nil {
			return err
		}

		affected, err := s.userRepo.AddLoads(ctx, tx, user.UserID, pkg.UserReceivedLoads, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return usermetadomain.ErrUserNotFound
		}

		history := &domain.PaymentHistory{
			ID:                s.genID.Generate(),
			UserID:            user.UserID,
			PackageHandle:     pkg.Handle,
			SquareVariationID: pkg.SquareVariationID,
			UserReceivedLoads: pkg.UserReceivedLoads,
			SquarePaymentID:   optionalString(req.PaymentID),
			SquareOrderID:     optionalString(req.OrderID),
			Source:            req.Source,
			CreatedAt:         now,
		}
		if err := s.repo.InsertHistory(ctx, tx, history); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyGranted
			}
			return err
		}

		balance, _, err := s.userRepo.Balance(ctx, tx, user.UserID)
		if err != nil {
			return err
		}

		result.UserID = user.UserID
		result.PackageHandle = pkg.Handle
		result.LoadsGranted = pkg.UserReceivedLoads
		result.Balance = balance
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyGranted) {
			s.log.Info("payment already granted", zap.String("payment_id", req.PaymentID))
		}
		return domain.GrantResult{}, err
	}

	s.obsMetrics.RecordLoadsGranted(ctx, req.Source, result.PackageHandle, result.LoadsGranted)
	s.log.Info("loads granted",
		zap.String("user_id", result.UserID),
		zap.String("package_handle", result.PackageHandle),
		zap.Int64("loads", result.LoadsGranted),
		zap.Int64("balance", result.Balance),
		zap.String("source", req.Source),
	)
	return result, nil
}

func (s *Service) resolveUser(ctx context.Context, tx *gorm.DB, req domain.GrantRequest) (*usermetadomain.UserMetadata, error) {
	var (
		user *usermetadomain.UserMetadata
		err  error
	)
	if req.UserID != "" {
		user, err = s.userRepo.FindByUserID(ctx, tx, req.UserID)
	} else {
		user, err = s.userRepo.FindByCustomerID(ctx, tx, req.CustomerID)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, usermetadomain.ErrUserNotFound
	}
	return user, nil
}

// Consume debits exactly one load. The conditional update never takes a balance below zero.
func (s *Service) Consume(ctx context.Context, req domain.ConsumeRequest) (domain.ConsumeResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ConsumeResult{}, domain.ErrMissingUserID
	}

	now := s.clock.Now()
	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.userRepo.ConsumeLoad(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		current, exists, err := s.userRepo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return usermetadomain.ErrUserNotFound
		}
		if affected == 0 {
			return domain.ErrInsufficientLoads
		}
		balance = current
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordLoadConsumed(ctx, consumeOutcome(err))
		return domain.ConsumeResult{}, err
	}

	s.obsMetrics.RecordLoadConsumed(ctx, "consumed")
	return domain.ConsumeResult{UserID: userID, Balance: balance}, nil
}

func consumeOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientLoads):
		return "insufficient"
	case errors.Is(err, usermetadomain.ErrUserNotFound):
		return "user_not_found"
	default:
		return "error"
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
