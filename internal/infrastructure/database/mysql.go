package database

import (
	"fmt"
	"log"
	"time"

	"subbilling/internal/config"
	"subbilling/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("failed to connect to MySQL: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get underlying DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&model.TarifPlan{},
		&model.TokenBundle{},
		&model.AddOn{},
		&model.Subscription{},
		&model.AddOnSubscription{},
		&model.Invoice{},
		&model.InvoiceLineItem{},
		&model.TokenBundlePurchase{},
		&model.UserTokenBalance{},
		&model.TokenTransaction{},
		&model.OutboxMessage{},
	)
	if err != nil {
		log.Fatalf("failed to auto-migrate schema: %v", err)
	}

	DB = db
	log.Println("MySQL connected")
	return db
}
