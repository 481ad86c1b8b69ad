package api

import (
	"time"

	"github.com/google/uuid"
)

// BidInfoUser 是出價紀錄中攜帶的使用者資訊
type BidInfoUser struct {
	ID   uuid.UUID `msgpack:"id"`
	Name string    `msgpack:"name"`
}

// BidInfo 是寫入出價 stream 的訊息內容
// 由出價腳本寫入，group consumer 讀出後同步回資料庫
type BidInfo struct {
	ItemID    uuid.UUID   `msgpack:"item_id"`
	User      BidInfoUser `msgpack:"user"`
	Amount    uint32      `msgpack:"amount"`
	CreatedAt time.Time   `msgpack:"created_at"`
}

// CommentInfo 是寫入留言 stream 的訊息內容
type CommentInfo struct {
	ItemID    uuid.UUID   `msgpack:"item_id"`
	User      BidInfoUser `msgpack:"user"`
	Content   string      `msgpack:"content"`
	CreatedAt time.Time   `msgpack:"created_at"`
}

// StatusInfo 是寫入狀態 stream 的訊息內容
// 拍賣被提前結束或取消時，由權威側廣播給所有即時會話
type StatusInfo struct {
	ItemID    uuid.UUID `msgpack:"item_id"`
	Status    string    `msgpack:"status"`
	CreatedAt time.Time `msgpack:"created_at"`
}
