// Package config 从环境变量读取服务配置，支持 .env 文件。
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// 环境变量名
const (
	envAddr      = "FUNDWATCH_ADDR"
	envPGDSN     = "FUNDWATCH_PG_DSN"
	envJWTSecret = "FUNDWATCH_JWT_SECRET"
)

const (
	defaultAddr  = ":8080"
	defaultPGDSN = "host=localhost user=postgres dbname=fundwatch port=5432 sslmode=disable TimeZone=Asia/Shanghai"
)

type Config struct {
	Addr      string
	PGDSN     string
	JWTSecret string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，直接读环境变量")
	}
	secret := os.Getenv(envJWTSecret)
	if secret == "" {
		secret = "dev_secret_please_change"
		log.Println("⚠️ 未设置 " + envJWTSecret + "，使用开发默认值")
	}
	return &Config{
		Addr:      getenv(envAddr, defaultAddr),
		PGDSN:     getenv(envPGDSN, defaultPGDSN),
		JWTSecret: secret,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
