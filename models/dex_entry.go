package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DexEntry 代表使用者圖鑑中一張卡片的收藏狀態
// 記錄打卡連續天數(streak)與漏打卡欠債(debt)的簿記資訊
type DexEntry struct {
	gorm.Model

	ID          uuid.UUID  `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_dex_entry_user_card,where:deleted_at IS NULL;<-:create"`
	CardID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_dex_entry_user_card,where:deleted_at IS NULL;<-:create"`
	Streak      uint32     `gorm:"type:integer;not null;default:0"`
	Debt        uint32     `gorm:"type:integer;not null;default:0"`
	CheckInDays uint32     `gorm:"type:integer;not null;default:0"`
	LastCheckIn *time.Time `gorm:"type:timestamp with time zone"`

	// 外鍵關聯
	User User
	Card Card
}

// CheckIn 代表一次打卡紀錄，每人每卡每天最多一筆
type CheckIn struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	DexEntryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_check_in_entry_day,where:deleted_at IS NULL;<-:create"`
	Day        string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_check_in_entry_day,where:deleted_at IS NULL;<-:create"`

	DexEntry DexEntry
}
