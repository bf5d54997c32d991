package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/internal/model"
)

// ErrDuplicateCharge 同一 charge_id 已经入账（支付通知重复投递）
var ErrDuplicateCharge = errors.New("charge already applied")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateTx 在给定事务内写入幂等标记，冲突时返回 ErrDuplicateCharge
func (r *PaymentRepository) CreateTx(tx *gorm.DB, payment *model.Payment) error {
	err := tx.Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCharge
	}
	return err
}

// Create 事务外写入（打赏等不触及权限的场景）
func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.CreateTx(r.db.WithContext(ctx), payment)
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
