package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/model"
	"github.com/marataitester/tarot_go_server/internal/model/dto"
	"github.com/marataitester/tarot_go_server/internal/pkg/cache"
	"github.com/marataitester/tarot_go_server/internal/pkg/pubsub"
	"github.com/marataitester/tarot_go_server/internal/repository"
)

// 用户可见文案（与小程序前端一致）
const (
	msgUnlimited = "У вас безлимитный доступ"
	msgBlocked   = "Бесплатные попытки закончились. Купите доступ на сутки за 10 ⭐"
	msgFailOpen  = "Попытка разрешена"
)

func msgRemaining(n int) string {
	return fmt.Sprintf("Осталось бесплатных попыток: %d", n)
}

// AccessService 权限引擎：纯评估 + 配额消耗。
// 只有这里（和 PaymentService 的激活路径）会改动权限记录，
// 其他代码一律通过快照读取。
type AccessService struct {
	entRepo   *repository.EntitlementRepository
	cache     *cache.StatusCache
	publisher *pubsub.Publisher
	cfg       *config.Config
	now       func() time.Time
}

func NewAccessService(
	entRepo *repository.EntitlementRepository,
	statusCache *cache.StatusCache,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *AccessService {
	return &AccessService{
		entRepo:   entRepo,
		cache:     statusCache,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Evaluate 纯函数：给定记录和当前时刻，判定访问状态，不产生任何副作用。
// rec 为 nil 表示该用户还没有记录（满额配额）。
// 窗口满 24 小时的记录按"窗口不存在"评估（读时虚拟重置，不落库）；
// 付费窗口有效时无条件放行，过期则回落到免费配额判定，而不是直接拒绝。
func (s *AccessService) Evaluate(rec *model.Entitlement, now time.Time) *dto.AccessInfo {
	free := s.cfg.Quota.DailyFreeLimit
	var paidUntil *time.Time

	if rec != nil {
		paidUntil = rec.PaidUntil
		if rec.WindowStale(now, s.cfg.Quota.Window()) {
			free = s.cfg.Quota.DailyFreeLimit
		} else {
			free = rec.FreeAttemptsRemaining
		}
	}

	if paidUntil != nil && paidUntil.After(now) {
		return &dto.AccessInfo{
			HasAccess: true,
			IsPaid:    true,
			PaidUntil: paidUntil.UTC().Format(time.RFC3339),
			Message:   msgUnlimited,
		}
	}

	if free > 0 {
		return &dto.AccessInfo{
			HasAccess:    true,
			AttemptsLeft: intPtr(free),
			Message:      msgRemaining(free),
		}
	}

	return &dto.AccessInfo{
		HasAccess:    false,
		AttemptsLeft: intPtr(0),
		Message:      msgBlocked,
	}
}

// Check 查询当前访问权限。读路径不落库、不创建记录。
// 数据库不可用时降级：先用 Redis 镜像按当前时刻重新评估，
// 镜像也没有时 fail-open 放行，等下一次成功对账再纠正计数。
func (s *AccessService) Check(ctx context.Context, userID int64) (*dto.AccessInfo, error) {
	now := s.now()

	rec, err := s.entRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.Evaluate(nil, now), nil
		}

		log.Printf("entitlement store read failed for user %d: %v", userID, err)
		if s.cache != nil {
			if cached, cacheErr := s.cache.Get(ctx, userID); cacheErr == nil {
				return s.Evaluate(cached, now), nil
			}
		}
		// fail-open：宁可多放一次，也不凭过期信息拒绝
		return &dto.AccessInfo{HasAccess: true, Message: msgFailOpen}, nil
	}

	s.refreshMirror(ctx, rec)
	return s.Evaluate(rec, now), nil
}

// RecordAttempt 消耗一次抽牌尝试，整个读-改-写在一个事务里完成。
// 付费窗口有效时只累计 total_attempts，不动免费配额；
// 配额耗尽时拒绝且不改动任何计数。写路径不 fail-open，出错直接上抛。
func (s *AccessService) RecordAttempt(ctx context.Context, userID int64) (*dto.AttemptResult, error) {
	now := s.now()
	var result dto.AttemptResult

	rec, err := s.entRepo.Mutate(ctx, userID, func(_ *gorm.DB, rec *model.Entitlement) error {
		s.materializeReset(rec, now)

		switch {
		case rec.PaidActive(now):
			rec.TotalAttempts++
			rec.LastAttemptAt = &now
			result = dto.AttemptResult{
				Allowed:   true,
				Unlimited: true,
				Message:   msgUnlimited,
			}
		case rec.FreeAttemptsRemaining > 0:
			if rec.WindowStart == nil {
				rec.WindowStart = &now
			}
			rec.FreeAttemptsRemaining--
			rec.TotalAttempts++
			rec.LastAttemptAt = &now
			result = dto.AttemptResult{
				Allowed:      true,
				AttemptsLeft: intPtr(rec.FreeAttemptsRemaining),
				Message:      msgRemaining(rec.FreeAttemptsRemaining),
			}
		default:
			result = dto.AttemptResult{
				Allowed:      false,
				AttemptsLeft: intPtr(0),
				Message:      msgBlocked,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.SyncMirror(ctx, rec)
	return &result, nil
}

// SyncMirror 成功写库后刷新 Redis 镜像并广播最新快照（尽力而为，失败只记日志）
func (s *AccessService) SyncMirror(ctx context.Context, rec *model.Entitlement) {
	s.refreshMirror(ctx, rec)

	if s.publisher == nil {
		return
	}
	info := s.Evaluate(rec, s.now())
	msg := &pubsub.StatusMessage{
		UserID:       rec.UserID,
		HasAccess:    info.HasAccess,
		IsPaid:       info.IsPaid,
		AttemptsLeft: info.AttemptsLeft,
		PaidUntil:    info.PaidUntil,
	}
	if err := s.publisher.PublishStatus(ctx, msg); err != nil {
		log.Printf("failed to publish entitlement update for user %d: %v", rec.UserID, err)
	}
}

func (s *AccessService) refreshMirror(ctx context.Context, rec *model.Entitlement) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, rec); err != nil {
		log.Printf("failed to refresh entitlement cache for user %d: %v", rec.UserID, err)
	}
}

// materializeReset 把读时的虚拟日重置落到存储记录上：
// 窗口满 24 小时则恢复满额配额、清掉窗口起点，顺带清理已过期的付费窗口
func (s *AccessService) materializeReset(rec *model.Entitlement, now time.Time) {
	if !rec.WindowStale(now, s.cfg.Quota.Window()) {
		return
	}
	rec.FreeAttemptsRemaining = s.cfg.Quota.DailyFreeLimit
	rec.WindowStart = nil
	if rec.PaidUntil != nil && !rec.PaidUntil.After(now) {
		rec.PaidUntil = nil
	}
}

func intPtr(v int) *int {
	return &v
}
