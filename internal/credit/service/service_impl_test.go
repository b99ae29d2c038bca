package service_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/loadpass/internal/catalog/repository"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/internal/credit/domain"
	creditrepo "github.com/smallbiznis/loadpass/internal/credit/repository"
	creditservice "github.com/smallbiznis/loadpass/internal/credit/service"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
	usermetarepo "github.com/smallbiznis/loadpass/internal/usermeta/repository"
	"github.com/smallbiznis/loadpass/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, conn *gorm.DB) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return creditservice.New(creditservice.Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(testNow),
		Repo:        creditrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		UserRepo:    usermetarepo.Provide(),
	})
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn := db.NewTest(t, &usermetadomain.UserMetadata{}, &catalogdomain.Package{}, &domain.PaymentHistory{})
	pkg := catalogdomain.Package{
		ID:                1,
		Handle:            "starter",
		Name:              "Starter",
		SquareVariationID: "VAR_STARTER",
		Price:             500,
		Currency:          "USD",
		UserReceivedLoads: 5,
		Active:            true,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	if err := conn.Create(&pkg).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, userID, customerID string, loads int64) {
	t.Helper()

	item := usermetadomain.UserMetadata{
		UserID:         userID,
		LoadsAvailable: loads,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	if customerID != "" {
		item.SquareCustomerID = &customerID
	}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func balanceOf(t *testing.T, conn *gorm.DB, userID string) int64 {
	t.Helper()

	var item usermetadomain.UserMetadata
	if err := conn.Where("user_id = ?", userID).First(&item).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return item.LoadsAvailable
}

func historyCount(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()

	var count int64
	if err := conn.Model(&domain.PaymentHistory{}).Count(&count).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	return count
}

func TestGrantByCustomerID(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", 2)
	svc := newService(t, conn)

	result, err := svc.Grant(context.Background(), domain.GrantRequest{
		CustomerID:  "CUST_1",
		VariationID: "VAR_STARTER",
		PaymentID:   "PAY_1",
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", result.UserID)
	require.Equal(t, "starter", result.PackageHandle)
	require.Equal(t, int64(5), result.LoadsGranted)
	require.Equal(t, int64(7), result.Balance)
	require.Equal(t, int64(7), balanceOf(t, conn, "user-1"))

	var history domain.PaymentHistory
	require.NoError(t, conn.First(&history).Error)
	require.Equal(t, domain.SourceCallback, history.Source)
	require.NotNil(t, history.SquarePaymentID)
	require.Equal(t, "PAY_1", *history.SquarePaymentID)
	require.Nil(t, history.SquareOrderID)
}

func TestGrantTreatsSentinelBalanceAsZero(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", -1)
	svc := newService(t, conn)

	result, err := svc.Grant(context.Background(), domain.GrantRequest{
		CustomerID:  "CUST_1",
		VariationID: "VAR_STARTER",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Balance)
}

func TestGrantReplayIsNoop(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", 0)
	svc := newService(t, conn)
	ctx := context.Background()

	req := domain.GrantRequest{CustomerID: "CUST_1", VariationID: "VAR_STARTER", PaymentID: "PAY_1"}
	if _, err := svc.Grant(ctx, req); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if _, err := svc.Grant(ctx, req); !errors.Is(err, domain.ErrAlreadyGranted) {
		t.Fatalf("expected ErrAlreadyGranted, got %v", err)
	}

	require.Equal(t, int64(5), balanceOf(t, conn, "user-1"))
	require.Equal(t, int64(1), historyCount(t, conn))
}

func TestGrantPrefersUserID(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", 0)
	seedUser(t, conn, "user-2", "", 1)
	svc := newService(t, conn)

	result, err := svc.Grant(context.Background(), domain.GrantRequest{
		CustomerID:  "CUST_1",
		UserID:      "user-2",
		VariationID: "VAR_STARTER",
		PaymentID:   "PAY_9",
		OrderID:     "ORDER_9",
		Source:      domain.SourceWebhook,
	})
	require.NoError(t, err)
	require.Equal(t, "user-2", result.UserID)
	require.Equal(t, int64(6), balanceOf(t, conn, "user-2"))
	require.Equal(t, int64(0), balanceOf(t, conn, "user-1"))
}

func TestGrantErrors(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", 0)
	svc := newService(t, conn)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.GrantRequest
		want error
	}{
		{"missing customer", domain.GrantRequest{VariationID: "VAR_STARTER"}, domain.ErrMissingGrantFields},
		{"missing variation", domain.GrantRequest{CustomerID: "CUST_1"}, domain.ErrMissingGrantFields},
		{"unknown variation", domain.GrantRequest{CustomerID: "CUST_1", VariationID: "VAR_X"}, catalogdomain.ErrPackageNotFound},
		{"unknown customer", domain.GrantRequest{CustomerID: "CUST_X", VariationID: "VAR_STARTER"}, usermetadomain.ErrUserNotFound},
		{"bad source", domain.GrantRequest{CustomerID: "CUST_1", VariationID: "VAR_STARTER", Source: "cron"}, domain.ErrInvalidSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Grant(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	require.Equal(t, int64(0), balanceOf(t, conn, "user-1"))
	require.Equal(t, int64(0), historyCount(t, conn))
}

func TestConsume(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "", 1)
	seedUser(t, conn, "user-empty", "", 0)
	svc := newService(t, conn)
	ctx := context.Background()

	result, err := svc.Consume(ctx, domain.ConsumeRequest{UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Balance)

	if _, err := svc.Consume(ctx, domain.ConsumeRequest{UserID: "user-1"}); !errors.Is(err, domain.ErrInsufficientLoads) {
		t.Fatalf("expected ErrInsufficientLoads, got %v", err)
	}
	require.Equal(t, int64(0), balanceOf(t, conn, "user-1"))

	if _, err := svc.Consume(ctx, domain.ConsumeRequest{UserID: "user-empty"}); !errors.Is(err, domain.ErrInsufficientLoads) {
		t.Fatalf("expected ErrInsufficientLoads, got %v", err)
	}
	if _, err := svc.Consume(ctx, domain.ConsumeRequest{UserID: "ghost"}); !errors.Is(err, usermetadomain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Consume(ctx, domain.ConsumeRequest{UserID: "  "}); !errors.Is(err, domain.ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestConcurrentConsumeSpendsLastLoadOnce(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "", 1)
	svc := newService(t, conn)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), domain.ConsumeRequest{UserID: "user-1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientLoads):
			insufficient++
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, insufficient)
	require.Equal(t, int64(0), balanceOf(t, conn, "user-1"))
}

func TestConcurrentGrantReplaysCreditOnce(t *testing.T) {
	conn := setupDB(t)
	seedUser(t, conn, "user-1", "CUST_1", -1)
	svc := newService(t, conn)

	const workers = 6
	req := domain.GrantRequest{CustomerID: "CUST_1", VariationID: "VAR_STARTER", PaymentID: "PAY_1"}
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Grant(context.Background(), req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var granted, replayed int
	for err := range errs {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, domain.ErrAlreadyGranted):
			replayed++
		default:
			t.Fatalf("unexpected grant error: %v", err)
		}
	}
	require.Equal(t, 1, granted)
	require.Equal(t, workers-1, replayed)
	require.Equal(t, int64(5), balanceOf(t, conn, "user-1"))
	require.Equal(t, int64(1), historyCount(t, conn))
}

func TestConsumeIssuesConditionalDecrement(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)`+regexp.QuoteMeta("SET loads_available = loads_available - 1")+`.+`+regexp.QuoteMeta("AND loads_available >= 1")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT loads_available\s+FROM user_metadata`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"loads_available"}).AddRow(int64(3)))
	mock.ExpectCommit()

	svc := newService(t, conn)
	result, err := svc.Consume(context.Background(), domain.ConsumeRequest{UserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeRollsBackWhenEmpty(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET loads_available = loads_available - 1")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT loads_available\s+FROM user_metadata`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"loads_available"}).AddRow(int64(0)))
	mock.ExpectRollback()

	svc := newService(t, conn)
	if _, err := svc.Consume(context.Background(), domain.ConsumeRequest{UserID: "user-1"}); !errors.Is(err, domain.ErrInsufficientLoads) {
		t.Fatalf("expected ErrInsufficientLoads, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
