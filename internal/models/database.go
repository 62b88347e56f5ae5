package models

import (
	"fmt"

	"github.com/assetlens/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&User{},
		&Feedback{},
		&CustomPolicy{},
		&LLMConfig{},
		&SystemConfig{},
		&IMBot{},
		&SystemLog{},
		&AnalysisDigest{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates default system configs if not exists
func SeedDefaultData() error {
	defaultConfigs := []SystemConfig{
		{Key: "generation_max_attempts", Value: "3", Type: "int", Group: "pipeline", Label: "Max Generation Attempts"},
		{Key: "generation_backoff_seconds", Value: "2", Type: "int", Group: "pipeline", Label: "Initial Retry Backoff (seconds)"},
		{Key: "digest_enabled", Value: "false", Type: "bool", Group: "digest", Label: "Enable Daily Analysis Digest"},
		{Key: "digest_time", Value: "18:00", Type: "string", Group: "digest", Label: "Daily Digest Time"},
		{Key: "digest_country", Value: "CN", Type: "string", Group: "digest", Label: "Business-Day Calendar Country"},
		{Key: "digest_llm_config_id", Value: "0", Type: "int", Group: "digest", Label: "Digest Summary LLM Config"},
		{Key: "ldap_enabled", Value: "false", Type: "bool", Group: "ldap", Label: "Enable LDAP Authentication"},
		{Key: "log_retention_days", Value: "30", Type: "int", Group: "general", Label: "System Log Retention Days"},
	}

	for _, cfg := range defaultConfigs {
		var count int64
		DB.Model(&SystemConfig{}).Where("key = ?", cfg.Key).Count(&count)
		if count == 0 {
			if err := DB.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
