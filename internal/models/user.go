package models

import (
	"gorm.io/gorm"
)

// User 用户表
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
}

// KVEntry 键值存储表，自选快照和刷新间隔都存这里
type KVEntry struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text;not null"`
}
