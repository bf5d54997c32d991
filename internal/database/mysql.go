package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/model"
)

// NewMySQL 连接 MySQL 并自动迁移权限相关表。
// TranslateError 开启后，唯一索引冲突统一转换为 gorm.ErrDuplicatedKey，
// 支付幂等判断依赖这一点。
func NewMySQL(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn(cfg)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.Entitlement{}, &model.Payment{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return db, nil
}

// dsn 连接串带上拨号/读/写超时，
// MySQL 挂起时读路径要尽快报错，降级到 Redis 镜像而不是卡死
func dsn(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=5s&readTimeout=5s&writeTimeout=5s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}
