package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/model"
	"github.com/marataitester/tarot_go_server/internal/pkg/cache"
	"github.com/marataitester/tarot_go_server/internal/repository"
	"github.com/marataitester/tarot_go_server/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Quota: config.QuotaConfig{
			DailyFreeLimit: 5,
			WindowHours:    24,
		},
		Payment: config.PaymentConfig{
			Currency: "XTR",
			Plans: []config.PaymentPlan{
				{Hours: 24, Stars: 10, Label: "24 часа"},
				{Hours: 72, Stars: 25, Label: "3 дня"},
				{Hours: 168, Stars: 50, Label: "7 дней"},
			},
			Donations: []config.DonationPlan{
				{Kind: "donation_small", Stars: 50, Title: "☕ Кофе автору"},
			},
		},
	}
}

func newTestAccessService(t *testing.T, db *gorm.DB) *AccessService {
	t.Helper()
	cfg := testConfig()
	entRepo := repository.NewEntitlementRepository(db, cfg.Quota.DailyFreeLimit)
	return NewAccessService(entRepo, nil, nil, cfg)
}

func TestEvaluate_NoRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)

	info := svc.Evaluate(nil, time.Now())

	assert.True(t, info.HasAccess)
	assert.False(t, info.IsPaid)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 5, *info.AttemptsLeft)
}

func TestEvaluate_ActivePaidWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)

	now := time.Now()
	paidUntil := now.Add(time.Hour)
	rec := &model.Entitlement{
		UserID:                1,
		FreeAttemptsRemaining: 0,
		PaidUntil:             &paidUntil,
	}

	info := svc.Evaluate(rec, now)

	assert.True(t, info.HasAccess)
	assert.True(t, info.IsPaid)
	assert.Nil(t, info.AttemptsLeft)
	assert.Equal(t, paidUntil.UTC().Format(time.RFC3339), info.PaidUntil)
}

func TestEvaluate_ExpiredPaidFallsBackToQuota(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)

	now := time.Now()
	paidUntil := now.Add(-time.Minute)
	rec := &model.Entitlement{
		UserID:                1,
		FreeAttemptsRemaining: 2,
		PaidUntil:             &paidUntil,
	}

	info := svc.Evaluate(rec, now)

	assert.True(t, info.HasAccess)
	assert.False(t, info.IsPaid)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 2, *info.AttemptsLeft)
}

func TestEvaluate_StaleWindowVirtualReset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)

	now := time.Now()
	windowStart := now.Add(-24*time.Hour - time.Second)
	rec := &model.Entitlement{
		UserID:                1,
		FreeAttemptsRemaining: 0,
		WindowStart:           &windowStart,
	}

	info := svc.Evaluate(rec, now)

	assert.True(t, info.HasAccess)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 5, *info.AttemptsLeft)
}

func TestEvaluate_Blocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)

	now := time.Now()
	windowStart := now.Add(-time.Hour)
	rec := &model.Entitlement{
		UserID:                1,
		FreeAttemptsRemaining: 0,
		WindowStart:           &windowStart,
	}

	info := svc.Evaluate(rec, now)

	assert.False(t, info.HasAccess)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 0, *info.AttemptsLeft)
	assert.Equal(t, msgBlocked, info.Message)
}

func TestCheck_NewUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	info, err := svc.Check(ctx, 100)
	require.NoError(t, err)
	assert.True(t, info.HasAccess)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 5, *info.AttemptsLeft)

	// 读路径不创建记录
	var count int64
	db.Model(&model.Entitlement{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCheck_DoesNotPersistReset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	windowStart := time.Now().Add(-25 * time.Hour).UTC()
	testutil.TestEntitlement(t, db, 100, testutil.WithFreeAttempts(0), testutil.WithWindowStart(windowStart))

	info, err := svc.Check(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, info.AttemptsLeft)
	assert.Equal(t, 5, *info.AttemptsLeft)

	// 虚拟重置只体现在评估结果里，存储记录保持原样
	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	assert.Equal(t, 0, stored.FreeAttemptsRemaining)
	assert.NotNil(t, stored.WindowStart)
}

func TestCheck_FailOpenOnStoreFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	// 关掉数据库模拟存储故障
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	info, err := svc.Check(ctx, 100)
	require.NoError(t, err)
	assert.True(t, info.HasAccess)
	assert.Equal(t, msgFailOpen, info.Message)
}

func TestCheck_FallsBackToCacheMirror(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rdb, _, cleanupRedis := setupServiceTestRedis(t)
	defer cleanupRedis()

	cfg := testConfig()
	entRepo := repository.NewEntitlementRepository(db, cfg.Quota.DailyFreeLimit)
	statusCache := cache.NewStatusCache(rdb, time.Hour)
	svc := NewAccessService(entRepo, statusCache, nil, cfg)
	ctx := context.Background()

	// 镜像里是一条付费记录
	paidUntil := time.Now().Add(time.Hour).UTC()
	require.NoError(t, statusCache.Set(ctx, &model.Entitlement{
		UserID:                7,
		FreeAttemptsRemaining: 0,
		PaidUntil:             &paidUntil,
	}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	info, err := svc.Check(ctx, 7)
	require.NoError(t, err)
	assert.True(t, info.HasAccess)
	assert.True(t, info.IsPaid)
}

func TestCheck_CachedPaidExpiredReevaluatedAtNow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rdb, _, cleanupRedis := setupServiceTestRedis(t)
	defer cleanupRedis()

	cfg := testConfig()
	entRepo := repository.NewEntitlementRepository(db, cfg.Quota.DailyFreeLimit)
	statusCache := cache.NewStatusCache(rdb, time.Hour)
	svc := NewAccessService(entRepo, statusCache, nil, cfg)
	ctx := context.Background()

	// 镜像写入时付费还有效，但按当前时刻评估已经过期
	paidUntil := time.Now().Add(-time.Minute).UTC()
	windowStart := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, statusCache.Set(ctx, &model.Entitlement{
		UserID:                8,
		FreeAttemptsRemaining: 0,
		WindowStart:           &windowStart,
		PaidUntil:             &paidUntil,
	}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	info, err := svc.Check(ctx, 8)
	require.NoError(t, err)
	assert.False(t, info.IsPaid)
	assert.False(t, info.HasAccess)
}

func TestRecordAttempt_FullSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	// 5 次成功，剩余次数 4..0
	for want := 4; want >= 0; want-- {
		result, err := svc.RecordAttempt(ctx, 100)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.False(t, result.Unlimited)
		require.NotNil(t, result.AttemptsLeft)
		assert.Equal(t, want, *result.AttemptsLeft)
	}

	// 第 6 次被拒，计数不再变化
	result, err := svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.AttemptsLeft)
	assert.Equal(t, 0, *result.AttemptsLeft)

	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	assert.Equal(t, 0, stored.FreeAttemptsRemaining)
	assert.Equal(t, int64(5), stored.TotalAttempts)
}

func TestRecordAttempt_FirstAttemptOpensWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	before := time.Now()
	result, err := svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	require.NotNil(t, stored.WindowStart)
	assert.False(t, stored.WindowStart.Before(before.Add(-time.Second)))
	require.NotNil(t, stored.LastAttemptAt)
}

func TestRecordAttempt_WindowRollover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testutil.TestEntitlement(t, db, 100,
		testutil.WithFreeAttempts(0),
		testutil.WithWindowStart(start),
	)

	// 窗口开始 24 小时零 1 秒之后，配额重置且新窗口从本次尝试开始
	later := start.Add(24*time.Hour + time.Second)
	svc.now = func() time.Time { return later }

	result, err := svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.NotNil(t, result.AttemptsLeft)
	assert.Equal(t, 4, *result.AttemptsLeft)

	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	require.NotNil(t, stored.WindowStart)
	assert.True(t, stored.WindowStart.Equal(later))
}

func TestRecordAttempt_ExactWindowBoundary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testutil.TestEntitlement(t, db, 100,
		testutil.WithFreeAttempts(0),
		testutil.WithWindowStart(start),
	)

	// 恰好满 24 小时也算窗口关闭
	svc.now = func() time.Time { return start.Add(24 * time.Hour) }

	result, err := svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.NotNil(t, result.AttemptsLeft)
	assert.Equal(t, 4, *result.AttemptsLeft)
}

func TestRecordAttempt_PaidDoesNotConsumeQuota(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	paidUntil := time.Now().Add(24 * time.Hour).UTC()
	testutil.TestEntitlement(t, db, 100,
		testutil.WithFreeAttempts(3),
		testutil.WithPaidUntil(paidUntil),
	)

	for i := 0; i < 10; i++ {
		result, err := svc.RecordAttempt(ctx, 100)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.True(t, result.Unlimited)
		assert.Nil(t, result.AttemptsLeft)
	}

	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	assert.Equal(t, 3, stored.FreeAttemptsRemaining)
	assert.Equal(t, int64(10), stored.TotalAttempts)
}

func TestRecordAttempt_PaidExpiryFallsBackToQuota(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	paidUntil := base.Add(24 * time.Hour)
	testutil.TestEntitlement(t, db, 100,
		testutil.WithFreeAttempts(5),
		testutil.WithPaidUntil(paidUntil),
	)

	// 付费期内无限
	svc.now = func() time.Time { return base.Add(23 * time.Hour) }
	result, err := svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Unlimited)

	// 过期后回落到免费配额，而不是直接拒绝
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	result, err = svc.RecordAttempt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.False(t, result.Unlimited)
	require.NotNil(t, result.AttemptsLeft)
	assert.Equal(t, 4, *result.AttemptsLeft)
}

func TestRecordAttempt_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)

	var mu sync.Mutex
	allowed := 0

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			result, err := svc.RecordAttempt(ctx, 100)
			if err != nil {
				return
			}
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 20 个并发请求恰好放行 5 个，计数不为负
	assert.Equal(t, 5, allowed)

	var stored model.Entitlement
	require.NoError(t, db.First(&stored, "user_id = ?", 100).Error)
	assert.Equal(t, 0, stored.FreeAttemptsRemaining)
	assert.Equal(t, int64(5), stored.TotalAttempts)
}

func TestRecordAttempt_StoreFailureReturnsError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newTestAccessService(t, db)
	ctx := context.Background()

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// 写路径绝不 fail-open
	result, err := svc.RecordAttempt(ctx, 100)
	assert.Error(t, err)
	assert.Nil(t, result)
}
