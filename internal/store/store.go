// Package store 把自选快照、刷新间隔这类键值数据落在 postgres 的 kv_entries 表里。
// 读写对调用方是同步的，坏数据一律按缺失处理回退默认值。
package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"fund-watch-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的键值存储
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetJSON 读取并反序列化 key 对应的值；key 不存在或存的内容解析失败返回 false，
// out 保持原样，调用方用默认值兜底
func (s *GormStore) GetJSON(key string, out any) bool {
	var e models.KVEntry
	if err := s.db.First(&e, "key = ?", key).Error; err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(e.Value), out); err != nil {
		return false
	}
	return true
}

func (s *GormStore) SetJSON(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.set(key, string(b))
}

// GetNumber 读数字值，缺失或不是数字时返回 fallback
func (s *GormStore) GetNumber(key string, fallback float64) float64 {
	var e models.KVEntry
	if err := s.db.First(&e, "key = ?", key).Error; err != nil {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func (s *GormStore) SetString(key, value string) error {
	return s.set(key, value)
}

func (s *GormStore) set(key, value string) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.KVEntry{Key: key, Value: value}).Error
}
