package main

import (
	"flag"
	"log"

	"mindwell_backend/internal/app"
	"mindwell_backend/internal/config"
	"mindwell_backend/pkg/database"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移后退出")
	forceMigrate := flag.Bool("force-migrate", false, "迁移前先删除现有数据表（仅限开发环境）")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.MigrateOnly = *migrateOnly
	cfg.ForceMigrate = *forceMigrate

	// InitDB 内部会执行 AutoMigrate
	if cfg.MigrateOnly {
		if _, err := database.InitDB(&cfg.Database, cfg.ForceMigrate); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		return
	}

	application := app.NewApp(cfg)
	application.Run()
}
