package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表社群中的收藏家帳號
// 包含基本的使用者資訊，如顯示名稱與自我介紹
type User struct {
	gorm.Model

	ID          uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Username    string    `gorm:"type:varchar(255);not null;<-:create"`
	DisplayName string    `gorm:"type:varchar(255);not null"`
	Bio         string    `gorm:"type:text;default:''"`
	AvatarURL   string    `gorm:"type:text;default:''"`
}
