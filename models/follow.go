package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Follow 代表使用者之間的追蹤關係
// FollowerID 追蹤 FolloweeID，同一組關係最多一筆
type Follow struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	FollowerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair,where:deleted_at IS NULL;<-:create"`
	FolloweeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follow_pair,where:deleted_at IS NULL;<-:create"`

	Follower *User `gorm:"foreignKey:FollowerID"`
	Followee *User `gorm:"foreignKey:FolloweeID"`
}
