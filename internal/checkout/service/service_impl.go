package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	"github.com/smallbiznis/loadpass/internal/checkout/domain"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/internal/config"
	obsmetrics "github.com/smallbiznis/loadpass/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	"github.com/smallbiznis/loadpass/internal/ratelimit"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	CatalogSvc catalogdomain.Service
	UserRepo   usermetadomain.Repository
	Provider   paymentdomain.Provider
	Limiter    *ratelimit.Limiter  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	redirectURL string
	repo        domain.Repository
	catalogSvc  catalogdomain.Service
	userRepo    usermetadomain.Repository
	provider    paymentdomain.Provider
	limiter     *ratelimit.Limiter
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		redirectURL: strings.TrimSpace(p.Cfg.Square.RedirectURL),
		repo:        p.Repo,
		catalogSvc:  p.CatalogSvc,
		userRepo:    p.UserRepo,
		provider:    p.Provider,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

// Issue creates a hosted payment link for the package and records the pending order.
// A link created before a local failure is left in place.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.IssueResult{}, domain.ErrUnauthenticated
	}
	handle := strings.TrimSpace(req.Handle)
	if handle == "" {
		return domain.IssueResult{}, catalogdomain.ErrInvalidHandle
	}

	pkg, err := s.catalogSvc.GetByHandle(ctx, handle)
	if err != nil {
		return domain.IssueResult{}, err
	}

	user, err := s.userRepo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.IssueResult{}, err
	}
	customerID := ""
	if user != nil && user.SquareCustomerID != nil {
		customerID = strings.TrimSpace(*user.SquareCustomerID)
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return domain.IssueResult{}, err
	}

	link, err := s.provider.CreatePaymentLink(ctx, paymentdomain.PaymentLinkRequest{
		IdempotencyKey: uuid.NewString(),
		VariationID:    pkg.SquareVariationID,
		Quantity:       "1",
		CustomerID:     customerID,
		RedirectURL:    s.redirectURL,
	})
	if err != nil {
		s.log.Warn("create payment link failed",
			zap.String("user_id", userID),
			zap.String("package_handle", pkg.Handle),
			zap.Error(err),
		)
		return domain.IssueResult{}, err
	}

	orderID := strings.TrimSpace(link.OrderID)
	if orderID == "" {
		return domain.IssueResult{}, domain.ErrMissingOrderID
	}

	pending := &domain.PendingTransaction{
		ID:                s.genID.Generate(),
		SquareOrderID:     orderID,
		UserID:            userID,
		PackageHandle:     pkg.Handle,
		SquareVariationID: pkg.SquareVariationID,
		PaymentLinkID:     link.ID,
		Status:            domain.StatusPending,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, pending); err != nil {
		s.log.Error("record pending transaction failed",
			zap.String("order_id", orderID),
			zap.String("payment_link_id", link.ID),
			zap.Error(err),
		)
		return domain.IssueResult{}, err
	}

	s.obsMetrics.RecordCheckoutLink(ctx, pkg.Handle)
	s.log.Info("checkout link issued",
		zap.String("user_id", userID),
		zap.String("package_handle", pkg.Handle),
		zap.String("order_id", orderID),
		zap.Bool("customer_bound", customerID != ""),
	)

	return domain.IssueResult{
		URL:           link.URL,
		OrderID:       orderID,
		PaymentLinkID: link.ID,
	}, nil
}

// checkRateLimit fails open when redis is unreachable.
func (s *Service) checkRateLimit(ctx context.Context, userID string) error {
	if !s.limiter.Enabled() {
		return nil
	}
	res, err := s.limiter.AllowCheckout(ctx, userID)
	if err != nil {
		s.log.Warn("checkout rate limit check failed", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		s.obsMetrics.RecordRateLimitDenied(ctx, "create-checkout-link", "user")
		return domain.ErrRateLimited
	}
	return nil
}
