package db

import (
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func ConnectDb(url string, log *utils.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  url,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Error),
	})

	if err != nil {
		return nil, err
	}

	log.Info("✅ Database connection successfully")

	log.Info("📦 Setting database connection pool...")
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func Migrate(db *gorm.DB, trigger bool, log *utils.Logger) error {

	if trigger {
		log.Info("📦 Migrating database...")
		entities := []interface{}{
			&models.Rank{},
			&models.User{},
			&models.Product{},
			&models.RebateConfig{},
			&models.Purchase{},
			&models.Rebate{},
			&models.BinaryPlacement{},
			&models.MonthlyPerformance{},
			&models.RankAdvancement{},
		}

		if err := db.AutoMigrate(entities...); err != nil {
			log.Errorf("✖ Failed to migrate database: %v", err)
			return err
		}
	}

	log.Info("✅ Database migration finished")
	return nil
}

// SeedRanks inserts the default rank ladder when the rank table is empty.
// The engines assume at least rank level 1 exists.
func SeedRanks(db *gorm.DB, log *utils.Logger) error {
	var count int64
	if err := db.Model(&models.Rank{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log.Info("📦 Seeding default ranks...")
	ranks := []models.Rank{
		{Level: 1, Name: "Member", MinDirectReferrals: 0, MinGroupVolume: decimal.Zero},
		{Level: 2, Name: "Bronze", MinDirectReferrals: 2, MinGroupVolume: decimal.NewFromInt(5000)},
		{Level: 3, Name: "Silver", MinDirectReferrals: 5, MinGroupVolume: decimal.NewFromInt(25000)},
		{Level: 4, Name: "Gold", MinDirectReferrals: 10, MinGroupVolume: decimal.NewFromInt(100000)},
		{Level: 5, Name: "Diamond", MinDirectReferrals: 20, MinGroupVolume: decimal.NewFromInt(500000)},
	}

	return db.Create(&ranks).Error
}
