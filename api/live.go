package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dexhub/metrics"
	"dexhub/models"
	"dexhub/simulate"
)

// Attach to the live activity stream of an auction
// (GET /auction/item/:itemID/live)
//
// 每條SSE連線對應一個即時會話：權威資料（真實出價、真實留言、狀態）
// 與模擬活動在會話內合併後推送，合成內容只存在於會話的記憶體中
func (impl *ServerImpl) GetAuctionItemItemIDLive(c *gin.Context) {
	const op = "GetAuctionItemItemIDLive"
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	// 檢查拍賣物品是否存在
	auction := models.AuctionItem{ID: itemID}
	if result := impl.db.
		Preload(
			"BidRecords",
			func(db *gorm.DB) *gorm.DB {
				return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
			}).
		Preload("BidRecords.User").
		Preload("CurrentBid").
		First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error))
		return
	}
	now := time.Now()
	// 檢查拍賣是否已經開始(開始前5分鐘開放連線)
	if now.Before(auction.StartTime.Add(-5 * time.Minute)) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Auction has not started"})
		return
	}
	// 檢查拍賣是否已經結束
	if auction.IsEnded(now) {
		c.JSON(http.StatusGone, gin.H{"message": "Auction has ended"})
		return
	}
	// 載入最近的歷史留言
	var history []models.Comment
	if result := impl.db.
		Preload("User").
		Where("auction_item_id = ?", itemID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Limit(25).
		Find(&history); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find comments, err=%w", op, result.Error))
		return
	}
	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")

	// 訂閱三條權威更新
	bidCh, err := impl.bidManager.Subscribe(itemID.String())
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to subscribe to bid events, err=%w", op, err))
		return
	}
	defer impl.bidManager.Unsubscribe(itemID.String(), bidCh)
	commentCh, err := impl.commentManager.Subscribe(itemID.String())
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to subscribe to comment events, err=%w", op, err))
		return
	}
	defer impl.commentManager.Unsubscribe(itemID.String(), commentCh)
	statusCh, err := impl.statusManager.Subscribe(itemID.String())
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to subscribe to status events, err=%w", op, err))
		return
	}
	defer impl.statusManager.Unsubscribe(itemID.String(), statusCh)

	// 建立即時會話，同一場拍賣的所有會話共用同一個觀看人數模型
	viewers, releaseViewers := impl.viewerHub.Acquire(itemID, auction.EndTime)
	session := simulate.NewSession(simulate.SessionConfig{
		AuctionID:      itemID,
		StartingPrice:  auction.StartingPrice,
		MinIncrement:   auction.MinIncrement,
		StartTime:      auction.StartTime,
		EndTime:        auction.EndTime,
		Active:         auction.Status == models.AuctionStatusActive,
		Identities:     simulate.DefaultIdentities,
		Viewers:        viewers,
		ReleaseViewers: releaseViewers,
	})
	defer session.Close()

	// 載入資料庫中已存在的真實出價
	realBids := make([]simulate.DisplayBid, len(auction.BidRecords))
	for i, bid := range auction.BidRecords {
		realBids[i] = simulate.DisplayBid{
			ID:          bid.ID,
			DisplayName: bid.User.DisplayName,
			Amount:      bid.Amount,
			Time:        bid.CreatedAt,
		}
	}
	var currentPrice uint32
	if auction.CurrentBid != nil {
		currentPrice = auction.CurrentBid.Amount
	}
	session.SetRealBids(realBids, currentPrice)

	// 載入資料庫中已存在的歷史留言
	realComments := make([]simulate.ChatMessage, len(history))
	for i, comment := range history {
		realComments[i] = simulate.ChatMessage{
			ID:      comment.ID,
			Author:  comment.User.DisplayName,
			Content: comment.Content,
			Time:    comment.CreatedAt,
		}
	}
	session.SetRealComments(realComments)
	session.Start()

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	events := session.Events()
LOOP:
	for {
		select {
		case <-w.CloseNotify():
			break LOOP
		case event, ok := <-events:
			if !ok {
				break LOOP
			}
			metrics.SyntheticEventsTotal.WithLabelValues(event.Type).Inc()
			c.SSEvent(event.Type, event)
			w.Flush()
		case info := <-bidCh:
			session.OnRealBid(simulate.DisplayBid{
				ID:          uuid.New(),
				DisplayName: info.User.Name,
				Amount:      info.Amount,
				Time:        info.CreatedAt,
			})
		case info := <-commentCh:
			session.OnRealComment(simulate.ChatMessage{
				ID:      uuid.New(),
				Author:  info.User.Name,
				Content: info.Content,
				Time:    info.CreatedAt,
			})
		case info := <-statusCh:
			session.OnStatus(info.Status)
		// 30秒沒有事件就發送一個空行，確保瀏覽器和Cloudflare不會斷開連線
		case <-time.After(30 * time.Second):
			w.WriteString("\n\n")
			w.Flush()
		}
	}
}
