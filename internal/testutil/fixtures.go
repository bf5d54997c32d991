package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/internal/model"
)

// TestEntitlement 创建测试权限记录
func TestEntitlement(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Entitlement)) *model.Entitlement {
	t.Helper()

	rec := &model.Entitlement{
		UserID:                userID,
		FreeAttemptsRemaining: 5,
	}

	for _, opt := range opts {
		opt(rec)
	}

	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}

	return rec
}

// WithFreeAttempts 设置剩余免费次数
func WithFreeAttempts(n int) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.FreeAttemptsRemaining = n
	}
}

// WithWindowStart 设置窗口起点
func WithWindowStart(ts time.Time) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.WindowStart = &ts
	}
}

// WithPaidUntil 设置付费窗口截止
func WithPaidUntil(ts time.Time) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.PaidUntil = &ts
	}
}

// WithTotalAttempts 设置累计尝试次数
func WithTotalAttempts(n int64) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.TotalAttempts = n
	}
}

// TestPayment 创建测试支付记录
func TestPayment(t *testing.T, db *gorm.DB, userID int64, chargeID string, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		UserID:        userID,
		ChargeID:      chargeID,
		Payload:       fmt.Sprintf(`{"user_id":%d,"duration":24}`, userID),
		DurationHours: 24,
		Amount:        10,
		Currency:      "XTR",
	}

	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// WithDuration 设置支付时长
func WithDuration(hours int) func(*model.Payment) {
	return func(p *model.Payment) {
		p.DurationHours = hours
	}
}

// WithAmount 设置支付金额
func WithAmount(stars int) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Amount = stars
	}
}
