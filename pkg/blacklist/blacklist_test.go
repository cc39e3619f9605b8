package blacklist_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil"
	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/blacklist"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) IsBlocked(ctx context.Context, tenantID, username string) (bool, error) {
	args := m.Called(ctx, tenantID, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockSource) Block(ctx context.Context, tenantID, username string) error {
	return m.Called(ctx, tenantID, username).Error(0)
}

func (m *mockSource) Unblock(ctx context.Context, tenantID, username string) error {
	return m.Called(ctx, tenantID, username).Error(0)
}

func newManager(t *testing.T) (*cache.Manager, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	mgr, err := cache.NewStandardManager(cache.DefaultConfig(), cache.WithClock(clock.Now))
	require.NoError(t, err)
	return mgr, clock
}

func TestKey(t *testing.T) {
	assert.Equal(t, "T1:alice", blacklist.Key(fixtures.TenantID, fixtures.Subject))
}

func TestService_CacheOnly(t *testing.T) {
	mgr, clock := newManager(t)
	svc := blacklist.NewService(mgr)
	ctx := context.Background()

	blocked, err := svc.IsBlocked(ctx, fixtures.TenantID, fixtures.Subject)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, svc.Block(ctx, fixtures.TenantID, fixtures.Subject))
	v, ok := cache.For[bool](mgr, cache.BlacklistCache).Get("T1:alice")
	require.True(t, ok)
	assert.True(t, v)

	blocked, err = svc.IsBlocked(ctx, fixtures.TenantID, fixtures.Subject)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = svc.IsBlocked(ctx, fixtures.AltTenantID, fixtures.Subject)
	require.NoError(t, err)
	assert.False(t, blocked, "blocks are per tenant")

	require.NoError(t, svc.Unblock(ctx, fixtures.TenantID, fixtures.Subject))
	blocked, _ = svc.IsBlocked(ctx, fixtures.TenantID, fixtures.Subject)
	assert.False(t, blocked)

	require.NoError(t, svc.Block(ctx, fixtures.TenantID, fixtures.AltSubject))
	clock.Advance(cache.DefaultBlacklistTTL + time.Second)
	blocked, _ = svc.IsBlocked(ctx, fixtures.TenantID, fixtures.AltSubject)
	assert.False(t, blocked, "cache-only blocks expire with the TTL")
}

func TestService_SourceMissCachesPositive(t *testing.T) {
	mgr, _ := newManager(t)
	src := new(mockSource)
	src.On("IsBlocked", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(true, nil).Once()
	svc := blacklist.NewService(mgr, blacklist.WithSource(src))

	for range 3 {
		blocked, err := svc.IsBlocked(context.Background(), fixtures.TenantID, fixtures.Subject)
		require.NoError(t, err)
		assert.True(t, blocked)
	}
	src.AssertNumberOfCalls(t, "IsBlocked", 1)
}

func TestService_SourceNegativeNotCached(t *testing.T) {
	mgr, _ := newManager(t)
	src := new(mockSource)
	src.On("IsBlocked", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(false, nil)
	svc := blacklist.NewService(mgr, blacklist.WithSource(src))

	for range 2 {
		blocked, err := svc.IsBlocked(context.Background(), fixtures.TenantID, fixtures.Subject)
		require.NoError(t, err)
		assert.False(t, blocked)
	}
	src.AssertNumberOfCalls(t, "IsBlocked", 2)
	assert.False(t, mgr.Contains(cache.BlacklistCache, "T1:alice"))
}

func TestService_SourceError(t *testing.T) {
	mgr, _ := newManager(t)
	src := new(mockSource)
	srcErr := sserr.New(sserr.CodeUnavailableDependency, "redis down")
	src.On("IsBlocked", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(false, srcErr)
	src.On("Block", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(srcErr)
	svc := blacklist.NewService(mgr, blacklist.WithSource(src))

	blocked, err := svc.IsBlocked(context.Background(), fixtures.TenantID, fixtures.Subject)
	assert.False(t, blocked)
	assert.ErrorIs(t, err, srcErr)

	err = svc.Block(context.Background(), fixtures.TenantID, fixtures.Subject)
	assert.ErrorIs(t, err, srcErr)
	assert.False(t, mgr.Contains(cache.BlacklistCache, "T1:alice"), "failed writes are not cached")
}

func TestService_WriteThrough(t *testing.T) {
	mgr, _ := newManager(t)
	src := new(mockSource)
	src.On("Block", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(nil).Once()
	src.On("Unblock", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(nil).Once()
	src.On("IsBlocked", mock.Anything, fixtures.TenantID, fixtures.Subject).Return(false, nil).Once()
	svc := blacklist.NewService(mgr, blacklist.WithSource(src))
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, fixtures.TenantID, fixtures.Subject))
	blocked, err := svc.IsBlocked(ctx, fixtures.TenantID, fixtures.Subject)
	require.NoError(t, err)
	assert.True(t, blocked, "served from cache")

	require.NoError(t, svc.Unblock(ctx, fixtures.TenantID, fixtures.Subject))
	blocked, err = svc.IsBlocked(ctx, fixtures.TenantID, fixtures.Subject)
	require.NoError(t, err)
	assert.False(t, blocked)

	src.AssertExpectations(t)
}

func TestService_Validation(t *testing.T) {
	mgr, _ := newManager(t)
	svc := blacklist.NewService(mgr)
	ctx := context.Background()

	testutil.AssertErrorCode(t, svc.Block(ctx, "", fixtures.Subject), sserr.CodeValidation)
	testutil.AssertErrorCode(t, svc.Unblock(ctx, fixtures.TenantID, ""), sserr.CodeValidation)
	_, err := svc.IsBlocked(ctx, "", "")
	testutil.AssertErrorCode(t, err, sserr.CodeValidation)
}

func TestService_TenantSeparatorRejected(t *testing.T) {
	mgr, _ := newManager(t)
	svc := blacklist.NewService(mgr)
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, "acme", "eu:bob"))

	blocked, err := svc.IsBlocked(ctx, "acme:eu", "bob")
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
	assert.False(t, blocked)
	testutil.AssertErrorCode(t, svc.Block(ctx, "acme:eu", "bob"), sserr.CodeValidation)
	testutil.AssertErrorCode(t, svc.Unblock(ctx, "acme:eu", "bob"), sserr.CodeValidation)

	blocked, err = svc.IsBlocked(ctx, "acme", "eu:bob")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestService_MissingCache(t *testing.T) {
	mgr, err := cache.NewManager([]cache.Spec{{Name: "other", MaxEntries: 1, TTL: time.Minute}})
	require.NoError(t, err)
	svc := blacklist.NewService(mgr)

	err = svc.Block(context.Background(), fixtures.TenantID, fixtures.Subject)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}
