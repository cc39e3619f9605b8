package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil"
	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) Lookup(ctx context.Context, tenantID string) (tenant.Config, bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(tenant.Config), args.Bool(1), args.Error(2)
}

type ServiceSuite struct {
	suite.Suite

	lookup   *mockLookup
	clock    *testutil.FakeClock
	mgr      *cache.Manager
	recorder *tracetest.SpanRecorder
	svc      *tenant.Service
}

func (s *ServiceSuite) SetupTest() {
	s.lookup = new(mockLookup)
	s.clock = testutil.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := cache.DefaultConfig()
	cfg.TenantConfig.TTL = time.Minute
	mgr, err := cache.NewStandardManager(cfg, cache.WithClock(s.clock.Now))
	s.Require().NoError(err)
	s.mgr = mgr

	s.recorder = tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.recorder))
	s.svc = tenant.NewService(s.lookup, mgr, tenant.WithTracerProvider(tp))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestGet_MissThenHit() {
	want := fixtures.Tenant(fixtures.TenantID, tenant.ShapeSigned)
	s.lookup.On("Lookup", mock.Anything, fixtures.TenantID).Return(want, true, nil).Once()

	got, err := s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)
	s.Equal(want, got)

	got, err = s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)
	s.Equal(want, got)

	s.lookup.AssertNumberOfCalls(s.T(), "Lookup", 1)

	spans := s.recorder.Ended()
	s.Require().Len(spans, 2)
	s.Equal("tenant.Get", spans[0].Name())
}

func (s *ServiceSuite) TestGet_ReloadsAfterTTL() {
	cfg := fixtures.Tenant(fixtures.TenantID, tenant.ShapeSigned)
	s.lookup.On("Lookup", mock.Anything, fixtures.TenantID).Return(cfg, true, nil).Twice()

	_, err := s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)

	s.clock.Advance(61 * time.Second)
	_, err = s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)

	s.lookup.AssertNumberOfCalls(s.T(), "Lookup", 2)
}

func (s *ServiceSuite) TestGet_NotFound() {
	s.lookup.On("Lookup", mock.Anything, "nope").Return(tenant.Config{}, false, nil)

	_, err := s.svc.Get(context.Background(), "nope")
	testutil.RequireErrorCode(s.T(), err, sserr.CodeNotFoundTenant)
	s.True(sserr.IsNotFound(err))
	s.False(s.mgr.Contains(cache.TenantConfigCache, "nope"))
}

func (s *ServiceSuite) TestGet_InvalidStoredConfigIsNotCached() {
	bad := fixtures.Tenant(fixtures.TenantID, tenant.ShapeEncrypted)
	bad.EncryptionMethod = ""
	s.lookup.On("Lookup", mock.Anything, fixtures.TenantID).Return(bad, true, nil)

	_, err := s.svc.Get(context.Background(), fixtures.TenantID)
	testutil.RequireErrorCode(s.T(), err, sserr.CodeTenantConfigInvalid)
	s.False(s.mgr.Contains(cache.TenantConfigCache, fixtures.TenantID))
}

func (s *ServiceSuite) TestGet_LookupError() {
	storeErr := sserr.New(sserr.CodeInternalDatabase, "down")
	s.lookup.On("Lookup", mock.Anything, fixtures.TenantID).Return(tenant.Config{}, false, storeErr)

	_, err := s.svc.Get(context.Background(), fixtures.TenantID)
	s.True(errors.Is(err, storeErr))
	s.Equal(sserr.CodeInternalDatabase, sserr.GetCode(err))
}

func (s *ServiceSuite) TestGet_EmptyID() {
	_, err := s.svc.Get(context.Background(), "")
	testutil.RequireErrorCode(s.T(), err, sserr.CodeValidation)
	s.lookup.AssertNotCalled(s.T(), "Lookup", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestInvalidateAndClear() {
	cfg := fixtures.Tenant(fixtures.TenantID, tenant.ShapeSigned)
	s.lookup.On("Lookup", mock.Anything, fixtures.TenantID).Return(cfg, true, nil)

	_, err := s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)
	s.True(s.svc.Invalidate(fixtures.TenantID))
	s.False(s.svc.Invalidate(fixtures.TenantID))

	_, err = s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)
	s.lookup.AssertNumberOfCalls(s.T(), "Lookup", 2)

	s.True(s.svc.Clear())
	s.False(s.mgr.Contains(cache.TenantConfigCache, fixtures.TenantID))
}

func (s *ServiceSuite) TestPut_ReplacesCachedEntry() {
	s.Require().NoError(s.svc.Put(fixtures.Tenant(fixtures.TenantID, tenant.ShapeSigned)))

	got, err := s.svc.Get(context.Background(), fixtures.TenantID)
	s.Require().NoError(err)
	s.Equal(tenant.ShapeSigned, got.Shape)
	s.lookup.AssertNotCalled(s.T(), "Lookup", mock.Anything, mock.Anything)

	invalid := fixtures.Tenant(fixtures.TenantID, tenant.ShapeSigned)
	invalid.RefreshTokenValidity = 0
	testutil.RequireErrorCode(s.T(), s.svc.Put(invalid), sserr.CodeTenantConfigInvalid)
}

func TestNewService_WithMemoryLookup(t *testing.T) {
	mgr, err := cache.NewStandardManager(cache.DefaultConfig())
	require.NoError(t, err)
	svc := tenant.NewService(
		tenant.NewMemoryLookup(fixtures.Tenant(fixtures.TenantID, tenant.ShapeSignedThenEncrypted)),
		mgr,
		tenant.WithLogger(nil),
	)

	cfg, err := svc.Get(context.Background(), fixtures.TenantID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ShapeSignedThenEncrypted, cfg.Shape)
}
