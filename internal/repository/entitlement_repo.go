package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marataitester/tarot_go_server/internal/model"
)

type EntitlementRepository struct {
	db          *gorm.DB
	defaultFree int
}

func NewEntitlementRepository(db *gorm.DB, defaultFreeAttempts int) *EntitlementRepository {
	return &EntitlementRepository{
		db:          db,
		defaultFree: defaultFreeAttempts,
	}
}

// GetByUserID 只读查询，不创建记录
func (r *EntitlementRepository) GetByUserID(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var rec model.Entitlement
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Mutate 对单个用户的权限记录做原子读-改-写。
// 事务内加行锁（MySQL 为 SELECT ... FOR UPDATE，SQLite 本身写串行化，无需锁子句），
// 记录不存在时在锁内惰性创建，fn 修改后统一保存。
// fn 返回错误时整个事务回滚。fn 可以通过 tx 在同一事务中写入其他表（如支付幂等标记）。
func (r *EntitlementRepository) Mutate(ctx context.Context, userID int64, fn func(tx *gorm.DB, rec *model.Entitlement) error) (*model.Entitlement, error) {
	var rec model.Entitlement
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Name() == "mysql" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("user_id = ?", userID).
			Attrs(model.Entitlement{UserID: userID, FreeAttemptsRemaining: r.defaultFree}).
			FirstOrCreate(&rec).Error; err != nil {
			return err
		}

		if err := fn(tx, &rec); err != nil {
			return err
		}

		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
