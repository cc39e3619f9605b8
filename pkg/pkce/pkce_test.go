package pkce_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil"
	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/pkce"
)

// RFC 7636 Appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func newService(t *testing.T, opts ...pkce.Option) (*pkce.Service, *cache.Manager, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	mgr, err := cache.NewStandardManager(cache.DefaultConfig(), cache.WithClock(clock.Now))
	require.NoError(t, err)
	opts = append([]pkce.Option{pkce.WithClock(clock.Now)}, opts...)
	return pkce.NewService(mgr, opts...), mgr, clock
}

func TestMethod_Challenge(t *testing.T) {
	assert.Equal(t, rfcChallenge, pkce.S256.Challenge(rfcVerifier))
	assert.Equal(t, rfcVerifier, pkce.Plain.Challenge(rfcVerifier))
	assert.Len(t, pkce.S384.Challenge(rfcVerifier), 64)
	assert.Len(t, pkce.S512.Challenge(rfcVerifier), 86)
	assert.Empty(t, pkce.Method("MD5").Challenge(rfcVerifier))

	for _, m := range pkce.Methods() {
		assert.True(t, m.Valid(), m)
		assert.NotContains(t, m.Challenge(rfcVerifier), "=")
	}
	assert.False(t, pkce.Method("s256").Valid())
}

func TestHandshake_S256(t *testing.T) {
	svc, mgr, _ := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.True(t, mgr.Contains(cache.PKCECache, code))

	require.NoError(t, svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier))
	assert.False(t, mgr.Contains(cache.PKCECache, code))
}

func TestHandshake_AllMethods(t *testing.T) {
	verifier := strings.Repeat("v", 64)
	for _, m := range pkce.Methods() {
		t.Run(m.String(), func(t *testing.T) {
			svc, _, _ := newService(t)
			code, err := svc.BeginChallenge(context.Background(), fixtures.TenantID, m.Challenge(verifier), m)
			require.NoError(t, err)
			require.NoError(t, svc.CompleteChallenge(context.Background(), code, fixtures.TenantID, verifier))
		})
	}
}

func TestCompleteChallenge_SingleUse(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier))

	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotFound)
	assert.True(t, sserr.IsNotFound(err))
}

func TestCompleteChallenge_UnknownCode(t *testing.T) {
	svc, _, _ := newService(t)
	err := svc.CompleteChallenge(context.Background(), "no-such-code", fixtures.TenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotFound)
}

func TestCompleteChallenge_TenantMismatchBurnsCode(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)

	err = svc.CompleteChallenge(ctx, code, fixtures.AltTenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeTenantMismatch)
	assert.True(t, sserr.IsAuthentication(err))

	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotFound)
}

func TestCompleteChallenge_ChallengeMismatchBurnsCode(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)

	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier+"x")
	testutil.RequireErrorCode(t, err, sserr.CodeChallengeMismatch)

	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotFound)
}

func TestCompleteChallenge_PlainVerifierAgainstHashedChallenge(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)

	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcChallenge)
	testutil.RequireErrorCode(t, err, sserr.CodeChallengeMismatch)
}

func TestCompleteChallenge_Expired(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()

	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)

	clock.Advance(cache.DefaultPKCETTL + time.Second)
	err = svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotFound)
}

func TestBeginChallenge_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	tests := []struct {
		name      string
		tenantID  string
		challenge string
		method    pkce.Method
	}{
		{"empty tenant", "", rfcChallenge, pkce.S256},
		{"unknown method", fixtures.TenantID, rfcChallenge, "MD5"},
		{"empty method", fixtures.TenantID, rfcChallenge, ""},
		{"short challenge", fixtures.TenantID, rfcChallenge[:42], pkce.S256},
		{"long challenge", fixtures.TenantID, strings.Repeat("a", 129), pkce.S512},
		{"empty plain challenge", fixtures.TenantID, "", pkce.Plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BeginChallenge(context.Background(), tt.tenantID, tt.challenge, tt.method)
			testutil.RequireErrorCode(t, err, sserr.CodeValidation)
		})
	}
}

func TestBeginChallenge_StateNotSaved(t *testing.T) {
	mgr, err := cache.NewStandardManager(cache.DefaultConfig())
	require.NoError(t, err)
	svc := pkce.NewServiceWithCache(mgr, "no-such-cache")

	_, err = svc.BeginChallenge(context.Background(), fixtures.TenantID, rfcChallenge, pkce.S256)
	testutil.RequireErrorCode(t, err, sserr.CodeStateNotSaved)
}

func TestBeginChallenge_StoresState(t *testing.T) {
	svc, mgr, clock := newService(t, pkce.WithCodeGenerator(func() string { return "code-1" }))

	code, err := svc.BeginChallenge(context.Background(), fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)
	assert.Equal(t, "code-1", code)

	state, ok := cache.For[pkce.AuthenticationRequestState](mgr, cache.PKCECache).Get(code)
	require.True(t, ok)
	assert.Equal(t, pkce.AuthenticationRequestState{
		Code:      "code-1",
		TenantID:  fixtures.TenantID,
		Challenge: rfcChallenge,
		Algorithm: pkce.S256,
		CreatedAt: clock.Now(),
	}, state)
}

func TestCompleteChallenge_ConcurrentSingleWinner(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	code, err := svc.BeginChallenge(ctx, fixtures.TenantID, rfcChallenge, pkce.S256)
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.CompleteChallenge(ctx, code, fixtures.TenantID, rfcVerifier) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}
