package model

import (
	"time"
)

// Entitlement 每个 Telegram 用户一条权限记录，首次访问时惰性创建，永不删除。
// free_attempts_remaining 始终在 [0, daily_free_limit] 范围内；
// window_start 为空表示当前没有打开的免费窗口（配额满额）；
// paid_until 在未来表示无限访问，优先于免费配额。
type Entitlement struct {
	UserID                int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	FreeAttemptsRemaining int        `gorm:"not null" json:"free_attempts_remaining"`
	WindowStart           *time.Time `json:"window_start,omitempty"`
	PaidUntil             *time.Time `json:"paid_until,omitempty"`
	TotalAttempts         int64      `gorm:"not null;default:0" json:"total_attempts"`
	LastAttemptAt         *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}

// WindowStale 免费窗口是否已满 24 小时（视为关闭，配额应重置）
func (e *Entitlement) WindowStale(now time.Time, window time.Duration) bool {
	return e.WindowStart != nil && now.Sub(*e.WindowStart) >= window
}

// PaidActive 付费窗口是否仍然有效
func (e *Entitlement) PaidActive(now time.Time) bool {
	return e.PaidUntil != nil && e.PaidUntil.After(now)
}
