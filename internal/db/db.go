package db

import (
	"fmt"
	"log"

	"fund-watch-server/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Init 连接 postgres 并同步表结构（用户表 + 键值表）
func Init(dsn string) *gorm.DB {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ 数据库连接失败: ", err)
	}
	fmt.Println("✅ 数据库连接成功！")

	if err := database.AutoMigrate(&models.User{}, &models.KVEntry{}); err != nil {
		log.Fatal("❌ 数据库迁移失败: ", err)
	}
	fmt.Println("✅ 数据库表结构同步完成")
	return database
}
