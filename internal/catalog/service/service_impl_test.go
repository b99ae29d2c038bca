package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loadpass/internal/catalog/domain"
	"github.com/smallbiznis/loadpass/internal/catalog/repository"
	"github.com/smallbiznis/loadpass/internal/clock"
	"github.com/smallbiznis/loadpass/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	conn := db.NewTest(t, &domain.Package{})
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, fake
}

func TestSyncAndLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.Sync(ctx, []domain.SyncEntry{
		{Handle: "starter", Name: "Starter", SquareVariationID: "VAR_A", Price: 500, Currency: "usd", UserReceivedLoads: 5},
		{Handle: "pro", Name: "Pro", SquareVariationID: "VAR_B", Price: 2000, UserReceivedLoads: 25},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	pkg, err := svc.GetByHandle(ctx, " starter ")
	require.NoError(t, err)
	require.Equal(t, "VAR_A", pkg.SquareVariationID)
	require.Equal(t, "USD", pkg.Currency)
	require.Equal(t, int64(5), pkg.UserReceivedLoads)

	pkg, err = svc.GetByVariationID(ctx, "VAR_B")
	require.NoError(t, err)
	require.Equal(t, "pro", pkg.Handle)
	require.Equal(t, "USD", pkg.Currency)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "starter", list[0].Handle)
}

func TestSyncKeepsIDOnResync(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, []domain.SyncEntry{
		{Handle: "starter", SquareVariationID: "VAR_A", Price: 500, UserReceivedLoads: 5},
	})
	require.NoError(t, err)
	first, err := svc.GetByHandle(ctx, "starter")
	require.NoError(t, err)

	fake.Advance(time.Hour)
	_, err = svc.Sync(ctx, []domain.SyncEntry{
		{Handle: "starter", SquareVariationID: "VAR_A2", Price: 700, UserReceivedLoads: 8},
	})
	require.NoError(t, err)

	second, err := svc.GetByHandle(ctx, "starter")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "VAR_A2", second.SquareVariationID)
	require.Equal(t, int64(8), second.UserReceivedLoads)

	if _, err := svc.GetByVariationID(ctx, "VAR_A"); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Fatalf("expected old variation to be gone, got %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetByHandle(ctx, ""); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
	if _, err := svc.GetByHandle(ctx, "missing"); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
	if _, err := svc.GetByVariationID(ctx, " "); !errors.Is(err, domain.ErrInvalidVariationID) {
		t.Fatalf("expected ErrInvalidVariationID, got %v", err)
	}
}

func TestSyncRejectsInvalidEntry(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Sync(context.Background(), []domain.SyncEntry{
		{Handle: "ok", SquareVariationID: "VAR_A", UserReceivedLoads: 1},
		{Handle: "broken", SquareVariationID: "VAR_B", UserReceivedLoads: 0},
	})
	if !errors.Is(err, domain.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}
