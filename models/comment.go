package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment 代表拍賣頁面上真實使用者發表的留言
// 只有真實留言會被持久化，模擬留言僅存在於記憶體中
type Comment struct {
	gorm.Model

	ID            uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionItemID uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Content       string    `gorm:"type:text;not null;<-:create"`

	// 外鍵關聯
	User        User
	AuctionItem AuctionItem
}
