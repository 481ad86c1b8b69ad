package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Card 代表圖鑑中的一張收藏卡
// 包含卡片編號、名稱、系列與稀有度
type Card struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	DexNo    uint32    `gorm:"type:integer;not null;uniqueIndex:idx_card_dex_no_series,where:deleted_at IS NULL"`
	Name     string    `gorm:"type:varchar(255);not null"`
	Series   string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_card_dex_no_series,where:deleted_at IS NULL"`
	Rarity   string    `gorm:"type:varchar(64);not null;default:'common'"`
	ImageURL string    `gorm:"type:text;default:''"`
}
