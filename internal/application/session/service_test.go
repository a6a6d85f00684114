package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domain "github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/session/mocks"
	"github.com/session-hub/session-hub/internal/domain/user"
	"github.com/session-hub/session-hub/internal/infrastructure/memory"
)

var testNow = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

// replacingRepo is a store double that supports atomic replacement.
type replacingRepo struct {
	*mocks.MockRepository
	*mocks.MockReplacer
}

func newMemoryService(t *testing.T) (*Service, *memory.SessionRepository, *user.User) {
	t.Helper()
	users := memory.NewUserRepository()
	u := &user.User{
		UserID:    uuid.New(),
		Email:     "ada@example.com",
		Role:      user.RoleUser,
		Status:    user.StatusActive,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, users.Create(context.Background(), u))
	repo := memory.NewSessionRepository(users)
	svc := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))
	return svc, repo, u
}

func seedSession(t *testing.T, repo domain.Repository, token string, userID uuid.UUID, created time.Time, lastSeen *time.Time, expires time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), &domain.Session{
		SessionID:   "01HSEEDSEEDSEEDSEEDSEEDSEE",
		SessionHash: domain.HashToken(token),
		UserID:      userID,
		CreatedAt:   created,
		LastSeenAt:  lastSeen,
		ExpiresAt:   expires,
	})
	require.NoError(t, err)
}

func TestNewService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockRepository(ctrl)
	service := NewService(repo, DefaultConfig(), zerolog.Nop())

	require.NotNil(t, service)
	assert.Equal(t, 30*24*time.Hour, service.cfg.TTL)
	assert.Equal(t, 12*time.Hour, service.cfg.RollingRefresh)
}

func TestService_CreateSession(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		userID := uuid.New()
		var stored *domain.Session

		repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, s *domain.Session) error {
				stored = s
				return nil
			})

		issued, err := service.CreateSession(ctx, userID)

		require.NoError(t, err)
		require.NotNil(t, issued)
		require.NotNil(t, stored)
		assert.NotEmpty(t, issued.Token)
		assert.Equal(t, testNow.Add(30*24*time.Hour), issued.ExpiresAt)
		assert.Equal(t, domain.HashToken(issued.Token), stored.SessionHash)
		assert.NotEqual(t, issued.Token, stored.SessionHash)
		assert.Equal(t, userID, stored.UserID)
		assert.Equal(t, testNow, stored.CreatedAt)
		assert.Equal(t, issued.ExpiresAt, stored.ExpiresAt)
		assert.Nil(t, stored.LastSeenAt)
		assert.Len(t, stored.SessionID, 26)
	})

	t.Run("store failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop())

		ctx := context.Background()
		repo.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("db down"))

		issued, err := service.CreateSession(ctx, uuid.New())

		require.Error(t, err)
		assert.Nil(t, issued)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestService_TouchSession(t *testing.T) {
	t.Run("recently seen session reads once and never writes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		row := &domain.Session{
			SessionID:   "01HROW",
			SessionHash: domain.HashToken("token-doesnt-matter"),
			UserID:      uuid.New(),
			CreatedAt:   testNow.Add(-2 * time.Hour),
			LastSeenAt:  ptrTime(testNow.Add(-30 * time.Minute)),
			ExpiresAt:   testNow.Add(29 * 24 * time.Hour),
		}

		repo.EXPECT().
			GetByHash(ctx, domain.HashToken("token-doesnt-matter")).
			Return(row, nil).
			Times(1)

		result, err := service.TouchSession(ctx, "token-doesnt-matter")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Refreshed)
		assert.Empty(t, result.Token)
		assert.Equal(t, row.ExpiresAt, result.ExpiresAt)
	})

	t.Run("expired session returns nil without writing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		repo.EXPECT().GetByHash(ctx, gomock.Any()).Return(&domain.Session{
			UserID:     uuid.New(),
			CreatedAt:  testNow.Add(-2 * time.Hour),
			LastSeenAt: ptrTime(testNow.Add(-2 * time.Hour)),
			ExpiresAt:  testNow.Add(-time.Second),
		}, nil)

		result, err := service.TouchSession(ctx, "token")

		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("unknown token returns nil", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		repo.EXPECT().GetByHash(ctx, gomock.Any()).Return(nil, nil)

		result, err := service.TouchSession(ctx, "unknown")

		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("empty and oversized tokens never reach the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop())

		ctx := context.Background()
		result, err := service.TouchSession(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, result)

		result, err = service.TouchSession(ctx, strings.Repeat("a", maxTokenLen+1))
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("store read failure propagates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop())

		ctx := context.Background()
		boom := errors.New("connection reset")
		repo.EXPECT().GetByHash(ctx, gomock.Any()).Return(nil, boom)

		result, err := service.TouchSession(ctx, "token")

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, result)
	})

	t.Run("stale session rotates with create then delete", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		oldHash := domain.HashToken("some-old-token")
		userID := uuid.New()
		var created *domain.Session

		gomock.InOrder(
			repo.EXPECT().GetByHash(ctx, oldHash).Return(&domain.Session{
				SessionID:   "01HOLD",
				SessionHash: oldHash,
				UserID:      userID,
				CreatedAt:   testNow.Add(-36 * time.Hour),
				LastSeenAt:  ptrTime(testNow.Add(-36 * time.Hour)),
				ExpiresAt:   testNow.Add(24 * time.Hour),
			}, nil),
			repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *domain.Session) error {
				created = s
				return nil
			}),
			repo.EXPECT().DeleteByHash(ctx, oldHash).Return(true, nil),
		)

		result, err := service.TouchSession(ctx, "some-old-token")

		require.NoError(t, err)
		require.NotNil(t, result)
		require.NotNil(t, created)
		assert.True(t, result.Refreshed)
		assert.NotEmpty(t, result.Token)
		assert.NotEqual(t, "some-old-token", result.Token)
		assert.Equal(t, testNow.Add(30*24*time.Hour), result.ExpiresAt)

		assert.Equal(t, userID, created.UserID)
		assert.Equal(t, domain.HashToken(result.Token), created.SessionHash)
		assert.Equal(t, result.ExpiresAt, created.ExpiresAt)
		require.NotNil(t, created.LastSeenAt)
		assert.Equal(t, testNow, *created.LastSeenAt)
		assert.NotEqual(t, "01HOLD", created.SessionID)
	})

	t.Run("stale session rotates atomically when the store supports it", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := replacingRepo{
			MockRepository: mocks.NewMockRepository(ctrl),
			MockReplacer:   mocks.NewMockReplacer(ctrl),
		}
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		oldHash := domain.HashToken("old")

		repo.MockRepository.EXPECT().GetByHash(ctx, oldHash).Return(&domain.Session{
			SessionHash: oldHash,
			UserID:      uuid.New(),
			CreatedAt:   testNow.Add(-20 * time.Hour),
			LastSeenAt:  ptrTime(testNow.Add(-13 * time.Hour)),
			ExpiresAt:   testNow.Add(24 * time.Hour),
		}, nil)
		repo.MockReplacer.EXPECT().
			Replace(ctx, oldHash, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, next *domain.Session) error {
				assert.Equal(t, testNow.Add(30*24*time.Hour), next.ExpiresAt)
				return nil
			})

		result, err := service.TouchSession(ctx, "old")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Refreshed)
	})

	t.Run("failed atomic rotation surfaces an error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := replacingRepo{
			MockRepository: mocks.NewMockRepository(ctrl),
			MockReplacer:   mocks.NewMockReplacer(ctrl),
		}
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		repo.MockRepository.EXPECT().GetByHash(ctx, gomock.Any()).Return(&domain.Session{
			UserID:    uuid.New(),
			CreatedAt: testNow.Add(-20 * time.Hour),
			ExpiresAt: testNow.Add(24 * time.Hour),
		}, nil)
		repo.MockReplacer.EXPECT().Replace(ctx, gomock.Any(), gomock.Any()).Return(errors.New("tx aborted"))

		result, err := service.TouchSession(ctx, "old")

		require.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("failed create keeps the old session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		repo.EXPECT().GetByHash(ctx, gomock.Any()).Return(&domain.Session{
			UserID:    uuid.New(),
			CreatedAt: testNow.Add(-20 * time.Hour),
			ExpiresAt: testNow.Add(24 * time.Hour),
		}, nil)
		repo.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("unique violation"))
		// No DeleteByHash expectation: deleting the old row here would lose the session.

		result, err := service.TouchSession(ctx, "old")

		require.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("failed delete after create still hands out the new token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		service := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		ctx := context.Background()
		repo.EXPECT().GetByHash(ctx, gomock.Any()).Return(&domain.Session{
			UserID:    uuid.New(),
			CreatedAt: testNow.Add(-20 * time.Hour),
			ExpiresAt: testNow.Add(24 * time.Hour),
		}, nil)
		repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
		repo.EXPECT().DeleteByHash(ctx, gomock.Any()).Return(false, errors.New("timeout"))

		result, err := service.TouchSession(ctx, "old")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Refreshed)
		assert.NotEmpty(t, result.Token)
	})
}

func TestService_RollingRefreshScenario(t *testing.T) {
	ctx := context.Background()

	t.Run("seen thirteen hours ago rotates", func(t *testing.T) {
		svc, repo, u := newMemoryService(t)
		seedSession(t, repo, "stale-token", u.UserID,
			testNow.Add(-20*time.Hour), ptrTime(testNow.Add(-13*time.Hour)), testNow.Add(29*24*time.Hour))

		result, err := svc.TouchSession(ctx, "stale-token")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Refreshed)
		assert.Equal(t, testNow.Add(30*24*time.Hour), result.ExpiresAt)

		p, err := svc.GetPrincipalForToken(ctx, "stale-token")
		require.NoError(t, err)
		assert.Nil(t, p, "old token must not resolve after rotation")

		p, err = svc.GetPrincipalForToken(ctx, result.Token)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, u.UserID, p.UserID)
		assert.Equal(t, 1, repo.Len())

		// The rotated session was just seen, so the next touch is a read.
		again, err := svc.TouchSession(ctx, result.Token)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.False(t, again.Refreshed)
		assert.Equal(t, result.ExpiresAt, again.ExpiresAt)
	})

	t.Run("seen an hour ago does not rotate", func(t *testing.T) {
		svc, repo, u := newMemoryService(t)
		expires := testNow.Add(10 * 24 * time.Hour)
		seedSession(t, repo, "fresh-token", u.UserID,
			testNow.Add(-20*time.Hour), ptrTime(testNow.Add(-time.Hour)), expires)

		result, err := svc.TouchSession(ctx, "fresh-token")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Refreshed)
		assert.Equal(t, expires, result.ExpiresAt)
	})

	t.Run("expired a second ago is invalid regardless of last seen", func(t *testing.T) {
		svc, repo, u := newMemoryService(t)
		seedSession(t, repo, "expired-token", u.UserID,
			testNow.Add(-20*time.Hour), ptrTime(testNow.Add(-time.Minute)), testNow.Add(-time.Second))

		result, err := svc.TouchSession(ctx, "expired-token")
		require.NoError(t, err)
		assert.Nil(t, result)

		p, err := svc.GetPrincipalForToken(ctx, "expired-token")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestService_GetPrincipalForToken(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip after create", func(t *testing.T) {
		svc, _, u := newMemoryService(t)

		issued, err := svc.CreateSession(ctx, u.UserID)
		require.NoError(t, err)

		p, err := svc.GetPrincipalForToken(ctx, issued.Token)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, u.UserID, p.UserID)
		assert.Equal(t, u.Email, p.Email)
	})

	t.Run("does not rotate stale sessions", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		svc := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()))

		principal := &user.Principal{UserID: uuid.New(), Email: "ada@example.com"}
		repo.EXPECT().GetByHashWithPrincipal(ctx, domain.HashToken("stale")).Return(&domain.Session{
			UserID:    principal.UserID,
			CreatedAt: testNow.Add(-48 * time.Hour),
			ExpiresAt: testNow.Add(time.Hour),
		}, principal, nil)

		p, err := svc.GetPrincipalForToken(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, principal, p)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)

		p, err := svc.GetPrincipalForToken(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, p)

		p, err = svc.GetPrincipalForToken(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockRepository(ctrl)
		svc := NewService(repo, DefaultConfig(), zerolog.Nop())

		repo.EXPECT().GetByHashWithPrincipal(ctx, gomock.Any()).Return(nil, nil, errors.New("db down"))

		p, err := svc.GetPrincipalForToken(ctx, "token")
		require.Error(t, err)
		assert.Nil(t, p)
	})
}

func TestService_DeleteSession(t *testing.T) {
	ctx := context.Background()
	svc, repo, u := newMemoryService(t)

	issued, err := svc.CreateSession(ctx, u.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, repo.Len())

	require.NoError(t, svc.DeleteSession(ctx, issued.Token))
	require.NoError(t, svc.DeleteSession(ctx, issued.Token))
	require.NoError(t, svc.DeleteSession(ctx, "never-issued"))
	require.NoError(t, svc.DeleteSession(ctx, ""))
	assert.Equal(t, 0, repo.Len())

	p, err := svc.GetPrincipalForToken(ctx, issued.Token)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestService_DeleteUserSessions(t *testing.T) {
	ctx := context.Background()
	svc, repo, u := newMemoryService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateSession(ctx, u.UserID)
		require.NoError(t, err)
	}
	_, err := svc.CreateSession(ctx, uuid.New())
	require.NoError(t, err)

	n, err := svc.DeleteUserSessions(ctx, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, repo.Len())
}

func TestService_SweepExpired(t *testing.T) {
	ctx := context.Background()
	svc, repo, u := newMemoryService(t)

	seedSession(t, repo, "gone", u.UserID, testNow.Add(-40*24*time.Hour), nil, testNow.Add(-10*24*time.Hour))
	seedSession(t, repo, "edge", u.UserID, testNow.Add(-30*24*time.Hour), nil, testNow)
	seedSession(t, repo, "live", u.UserID, testNow.Add(-time.Hour), nil, testNow.Add(time.Hour))

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, repo.Len())
}

func TestService_ConcurrentRotation(t *testing.T) {
	ctx := context.Background()
	svc, repo, u := newMemoryService(t)
	seedSession(t, repo, "shared", u.UserID,
		testNow.Add(-20*time.Hour), ptrTime(testNow.Add(-13*time.Hour)), testNow.Add(24*time.Hour))

	const callers = 2
	var wg sync.WaitGroup
	results := make([]*TouchResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.TouchSession(ctx, "shared")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i] != nil && results[i].Refreshed {
			p, err := svc.GetPrincipalForToken(ctx, results[i].Token)
			require.NoError(t, err)
			assert.NotNil(t, p)
		}
	}

	p, err := svc.GetPrincipalForToken(ctx, "shared")
	require.NoError(t, err)
	assert.Nil(t, p, "old token must not resolve after concurrent rotation")
}

func TestService_Metrics(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	repo := memory.NewSessionRepository(users)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := NewService(repo, DefaultConfig(), zerolog.Nop(), WithClock(fixedClock()), WithMetrics(metrics))

	userID := uuid.New()
	issued, err := svc.CreateSession(ctx, userID)
	require.NoError(t, err)
	seedSession(t, repo, "stale", userID, testNow.Add(-20*time.Hour), nil, testNow.Add(time.Hour))

	_, err = svc.TouchSession(ctx, issued.Token)
	require.NoError(t, err)
	_, err = svc.TouchSession(ctx, "stale")
	require.NoError(t, err)
	_, err = svc.TouchSession(ctx, "missing")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.touched.WithLabelValues("fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.touched.WithLabelValues("rotated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.touched.WithLabelValues("invalid")))

	require.NoError(t, svc.DeleteSession(ctx, issued.Token))
	require.NoError(t, svc.DeleteSession(ctx, issued.Token))
	require.NoError(t, svc.DeleteSession(ctx, "missing"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deleted))
}
