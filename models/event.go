package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event 代表社群舉辦的實體或線上活動
// 包含活動資訊、時間與報名人數上限
type Event struct {
	gorm.Model

	ID          uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	Location    string    `gorm:"type:varchar(255);not null;default:''"`
	Capacity    uint32    `gorm:"type:integer;not null;default:0"`
	StartTime   time.Time `gorm:"type:timestamp with time zone;not null"`
	EndTime     time.Time `gorm:"type:timestamp with time zone;not null"`

	Registrations []EventRegistration
}

// EventRegistration 代表一筆活動報名，每人每活動最多一筆
type EventRegistration struct {
	gorm.Model

	ID      uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	EventID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_registration_pair,where:deleted_at IS NULL;<-:create"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_registration_pair,where:deleted_at IS NULL;<-:create"`

	Event Event
	User  User
}
