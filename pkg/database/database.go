package database

import (
	"fmt"
	"log"

	"mindwell_backend/internal/config"
	"mindwell_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 建立连接并执行迁移；forceMigrate 为真时先删表重建（仅限开发环境）
func InitDB(cfg *config.DatabaseConfig, forceMigrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if forceMigrate {
		log.Println("Force migrate: dropping existing tables")
		// 依赖表先删，避免外键约束报错
		err = db.Migrator().DropTable(
			&model.AssessmentInvite{},
			&model.Assessment{},
			&model.Message{},
			&model.ConversationMember{},
			&model.Conversation{},
			&model.User{},
		)
		if err != nil {
			return nil, err
		}
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
		&model.Assessment{},
		&model.AssessmentInvite{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}
