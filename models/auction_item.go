package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionStatus 代表拍賣物品的生命週期狀態
type AuctionStatus string

const (
	AuctionStatusDraft     AuctionStatus = "draft"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// AuctionItem 代表拍賣系統中的收藏品
// 包含商品資訊、起標價、最低加價幅度、目前最高出價、拍賣時間等資訊
type AuctionItem struct {
	gorm.Model

	ID            uuid.UUID     `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	UserID        uuid.UUID     `gorm:"type:uuid;<-:create"`
	Title         string        `gorm:"type:varchar(255);not null"`
	Description   string        `gorm:"type:text;not null"`
	StartingPrice uint32        `gorm:"type:integer;not null"`
	MinIncrement  uint32        `gorm:"type:integer;not null;default:1"`
	CurrentBidID  *uuid.UUID    `gorm:"type:uuid;"`
	Status        AuctionStatus `gorm:"type:text;not null;default:'active'"`
	BidCount      uint32        `gorm:"type:integer;not null;default:0"`
	StartTime     time.Time     `gorm:"type:timestamp with time zone;not null"`
	EndTime       time.Time     `gorm:"type:timestamp with time zone;not null"`
	Carousels     []string      `gorm:"type:text[];default:'{}'"`

	// 外鍵關聯
	User       User
	CurrentBid *Bid `gorm:"foreignKey:CurrentBidID"`
	BidRecords []Bid
}

// IsEnded 判斷拍賣是否已經結束
// 以結束時間與狀態欄位兩者中較嚴格者為準
func (a AuctionItem) IsEnded(now time.Time) bool {
	if a.Status == AuctionStatusEnded || a.Status == AuctionStatusCancelled {
		return true
	}
	return now.After(a.EndTime)
}
