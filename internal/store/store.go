package store

import (
	"fmt"
	"log"
	"time"

	"menu_digital/internal/config"
	"menu_digital/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open 按配置选择驱动建连：生产用 MySQL（行锁语义完整），
// 本地开发 / 单元测试可退回 SQLite 单文件。
func Open(cfg config.AppConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch cfg.DBDriver {
	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.MySQLDSN()), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		return db, nil
	case "sqlite":
		log.Printf("store: sqlite 无行锁（FOR UPDATE/SKIP LOCKED 降级为普通读），仅限本地开发，生产请设 DB_DRIVER=mysql")
		db, err := gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}

// AutoMigrate 建表 / 补索引。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Category{},
		&model.Food{},
		&model.DiningTable{},
		&model.Order{},
		&model.OrderItem{},
	)
}

// ForUpdate 给查询加阻塞式行锁（SELECT ... FOR UPDATE）。
// SQLite 没有行锁（库级单写者天然串行），直接降级为普通读。
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SkipLocked 给查询加非阻塞行锁（FOR UPDATE SKIP LOCKED）：
// 已被其他事务锁住的行直接跳过，不等待。后台回收任务靠它
// 与请求路径互不阻塞。
func SkipLocked(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}
