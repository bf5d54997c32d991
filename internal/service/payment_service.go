package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/model"
	"github.com/marataitester/tarot_go_server/internal/pkg/telegram"
	"github.com/marataitester/tarot_go_server/internal/repository"
)

var (
	ErrInvalidDuration = errors.New("длительность не входит в список тарифов")
)

// InvoiceLinker 创建支付链接的出站依赖（生产环境为 *telegram.Client）
type InvoiceLinker interface {
	CreateInvoiceLink(ctx context.Context, link telegram.InvoiceLink) (string, error)
}

// PaymentService 支付窗口的激活与账单创建。
// 激活必须幂等：幂等标记的写入和 paid_until 的延长在同一个事务里，
// 重复投递的 charge_id 不会二次延长付费窗口。
type PaymentService struct {
	entRepo *repository.EntitlementRepository
	payRepo *repository.PaymentRepository
	access  *AccessService
	tg      InvoiceLinker
	cfg     *config.Config
	now     func() time.Time
}

func NewPaymentService(
	entRepo *repository.EntitlementRepository,
	payRepo *repository.PaymentRepository,
	access *AccessService,
	tg InvoiceLinker,
	cfg *config.Config,
) *PaymentService {
	return &PaymentService{
		entRepo: entRepo,
		payRepo: payRepo,
		access:  access,
		tg:      tg,
		cfg:     cfg,
		now:     time.Now,
	}
}

// invoicePayload 账单里携带的业务载荷，successful_payment 回传时解出
type invoicePayload struct {
	UserID   int64 `json:"user_id"`
	Duration int   `json:"duration"`
}

func decodeInvoicePayload(raw string) (int64, int, bool) {
	var p invoicePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return 0, 0, false
	}
	if p.UserID <= 0 || p.Duration <= 0 {
		return 0, 0, false
	}
	return p.UserID, p.Duration, true
}

// ActivatePaidAccess 应用一条支付通知，按 chargeID 幂等。
// 返回 applied=false 表示该 charge 已处理过，记录原样返回。
// 锚点取 window_start（保留滚动 24h 的重置起点），没有窗口则取当前时刻；
// 未过期的付费窗口在其之上叠加时长，而不是覆盖。
func (s *PaymentService) ActivatePaidAccess(ctx context.Context, userID int64, durationHours int, chargeID string, amount int, payload string) (*model.Entitlement, bool, error) {
	if _, ok := s.cfg.Payment.Plan(durationHours); !ok {
		return nil, false, ErrInvalidDuration
	}
	if chargeID == "" {
		return nil, false, fmt.Errorf("charge id is empty")
	}

	now := s.now()

	rec, err := s.entRepo.Mutate(ctx, userID, func(tx *gorm.DB, rec *model.Entitlement) error {
		if err := s.payRepo.CreateTx(tx, &model.Payment{
			UserID:        userID,
			ChargeID:      chargeID,
			Payload:       payload,
			DurationHours: durationHours,
			Amount:        amount,
			Currency:      s.cfg.Payment.Currency,
		}); err != nil {
			return err
		}

		// 到点的日重置先落库（过期窗口不能再当锚点用）
		s.access.materializeReset(rec, now)

		anchor := now
		if rec.WindowStart != nil {
			anchor = *rec.WindowStart
		}
		base := anchor
		if rec.PaidActive(now) && rec.PaidUntil.After(base) {
			base = *rec.PaidUntil
		}
		paidUntil := base.Add(time.Duration(durationHours) * time.Hour)
		rec.PaidUntil = &paidUntil
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateCharge) {
			return s.currentRecord(ctx, userID)
		}
		return nil, false, err
	}

	s.access.SyncMirror(ctx, rec)
	return rec, true, nil
}

// currentRecord 重复 charge 时返回现有记录（没有记录则给默认满额视图）
func (s *PaymentService) currentRecord(ctx context.Context, userID int64) (*model.Entitlement, bool, error) {
	rec, err := s.entRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.Entitlement{
				UserID:                userID,
				FreeAttemptsRemaining: s.cfg.Quota.DailyFreeLimit,
			}, false, nil
		}
		return nil, false, err
	}
	return rec, false, nil
}

// RecordDonation 打赏只入账审计，不改动访问权限；重复投递静默忽略
func (s *PaymentService) RecordDonation(ctx context.Context, userID int64, chargeID, payload string, amount int) error {
	err := s.payRepo.Create(ctx, &model.Payment{
		UserID:   userID,
		ChargeID: chargeID,
		Payload:  payload,
		Amount:   amount,
		Currency: s.cfg.Payment.Currency,
	})
	if errors.Is(err, repository.ErrDuplicateCharge) {
		return nil
	}
	return err
}

// CreateInvoice 为指定时长的套餐生成支付链接
func (s *PaymentService) CreateInvoice(ctx context.Context, userID int64, durationHours int) (string, error) {
	plan, ok := s.cfg.Payment.Plan(durationHours)
	if !ok {
		return "", ErrInvalidDuration
	}

	payload, err := json.Marshal(invoicePayload{UserID: userID, Duration: durationHours})
	if err != nil {
		return "", err
	}

	return s.tg.CreateInvoiceLink(ctx, telegram.InvoiceLink{
		Title:       "Карта дня - " + plan.Label,
		Description: fmt.Sprintf("Безлимитный доступ к картам таро на %s", plan.Label),
		Payload:     string(payload),
		Currency:    s.cfg.Payment.Currency,
		Prices:      []telegram.LabeledPrice{{Label: "Подписка", Amount: plan.Stars}},
	})
}

// GrantAccess 管理端手工补偿：走同一条幂等激活路径，charge_id 由服务端合成
func (s *PaymentService) GrantAccess(ctx context.Context, userID int64, durationHours int, note string) (*model.Entitlement, error) {
	chargeID := fmt.Sprintf("manual_%d_%d", userID, s.now().UnixNano())
	payload := "manual_grant"
	if note != "" {
		payload = "manual_grant:" + note
	}
	rec, _, err := s.ActivatePaidAccess(ctx, userID, durationHours, chargeID, 0, payload)
	return rec, err
}

// ListPayments 管理端查看用户的支付历史
func (s *PaymentService) ListPayments(ctx context.Context, userID int64) ([]model.Payment, error) {
	return s.payRepo.ListByUser(ctx, userID)
}
