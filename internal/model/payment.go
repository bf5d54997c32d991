package model

import (
	"time"
)

// Payment 一条已处理的支付通知，同时充当幂等标记：
// (user_id, charge_id) 唯一索引保证同一笔 Telegram 支付重复投递时只生效一次。
// 打赏也会落一条记录（duration_hours = 0），仅作审计。
type Payment struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"not null;uniqueIndex:idx_payments_user_charge" json:"user_id"`
	ChargeID      string    `gorm:"size:128;not null;uniqueIndex:idx_payments_user_charge" json:"charge_id"`
	Payload       string    `gorm:"size:255" json:"payload,omitempty"`
	DurationHours int       `gorm:"not null;default:0" json:"duration_hours"`
	Amount        int       `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"size:10;default:XTR" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}
