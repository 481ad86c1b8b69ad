package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	redisAdapter "dexhub/adapters/redis"
	"dexhub/metrics"
	"dexhub/models"
)

type PostAuctionItemRequest struct {
	Title         string     `json:"title" binding:"required"`
	Description   *string    `json:"description"`
	StartingPrice *uint32    `json:"startingPrice"`
	MinIncrement  *uint32    `json:"minIncrement"`
	StartTime     *time.Time `json:"startTime"`
	EndTime       time.Time  `json:"endTime" binding:"required"`
	Carousels     *[]string  `json:"carousels"`
}

// Add a new auction item
// (POST /auction/item)
func (impl *ServerImpl) PostAuctionItem(c *gin.Context) {
	const op = "PostAuctionItem"
	// 檢查使用者是否有權限新增拍賣物品
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	var body PostAuctionItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	// 處理預設值
	if body.Description == nil {
		body.Description = lo.ToPtr("")
	}
	if body.StartingPrice == nil {
		body.StartingPrice = lo.ToPtr(uint32(0))
	}
	if body.MinIncrement == nil || *body.MinIncrement == 0 {
		body.MinIncrement = lo.ToPtr(uint32(1))
	}
	if body.StartTime == nil {
		body.StartTime = lo.ToPtr(time.Now())
	}
	if body.Carousels == nil {
		body.Carousels = lo.ToPtr([]string{})
	}
	// 檢查拍賣物品的拍賣時間和結束時間是否合法
	if body.StartTime.After(body.EndTime) || body.EndTime.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid auction time"})
		return
	}
	// 儲存拍賣物品
	auction := models.AuctionItem{
		UserID:        uuid.MustParse(token.Subject),
		Title:         body.Title,
		Description:   impl.htmlChecker.Sanitize(*body.Description),
		StartingPrice: *body.StartingPrice,
		MinIncrement:  *body.MinIncrement,
		Status:        models.AuctionStatusActive,
		CurrentBidID:  nil,
		StartTime:     *body.StartTime,
		EndTime:       body.EndTime,
		Carousels:     *body.Carousels,
	}
	if result := impl.db.Create(&auction); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to create auction item, err=%w", op, result.Error))
		return
	}
	c.Header("Location", auction.ID.String())
	c.Status(http.StatusCreated)
}

type BidRecordResponse struct {
	Bid  uint32    `json:"bid"`
	User string    `json:"user"`
	Time time.Time `json:"time"`
}

// Get auction item details
// (GET /auction/item/:itemID)
func (impl *ServerImpl) GetAuctionItemItemID(c *gin.Context) {
	const op = "GetAuctionItemItemID"
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
		Preload("CurrentBid.User").
		First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error))
		return
	}
	// 取得所有出價紀錄
	bidRecords := make([]BidRecordResponse, len(auction.BidRecords))
	for i, bid := range auction.BidRecords {
		bidRecords[i] = BidRecordResponse{
			Bid:  bid.Amount,
			User: bid.User.DisplayName,
			Time: bid.CreatedAt,
		}
	}
	currentBid := auction.StartingPrice
	if auction.CurrentBid != nil {
		currentBid = auction.CurrentBid.Amount
	}
	// 回傳拍賣物品資訊
	c.JSON(http.StatusOK, gin.H{
		"title":        auction.Title,
		"description":  auction.Description,
		"startPrice":   auction.StartingPrice,
		"minIncrement": auction.MinIncrement,
		"currentBid":   currentBid,
		"bidCount":     auction.BidCount,
		"status":       auction.Status,
		"startTime":    auction.StartTime,
		"endTime":      auction.EndTime,
		"isEnded":      auction.IsEnded(time.Now()),
		"carousels":    auction.Carousels,
		"bidRecords":   bidRecords,
	})
}

// List auction items
// (GET /auction/items)
func (impl *ServerImpl) GetAuctionItems(c *gin.Context) {
	const op = "GetAuctionItems"
	now := time.Now()
	// 建立查詢
	query := impl.db.Joins("CurrentBid").Model(&models.AuctionItem{})
	//  - title
	if title := c.Query("title"); title != "" {
		query = query.Where("title LIKE ?", "%"+title+"%")
	}
	//  - start_price
	if from := c.Query("start_price_from"); from != "" {
		query = query.Where("starting_price >= ?", from)
	}
	if to := c.Query("start_price_to"); to != "" {
		query = query.Where("starting_price <= ?", to)
	}
	//  - start_time
	if from := c.Query("start_time_from"); from != "" {
		query = query.Where("start_time >= ?", from)
	}
	if to := c.Query("start_time_to"); to != "" {
		query = query.Where("start_time <= ?", to)
	}
	//  - end_time
	if from := c.Query("end_time_from"); from != "" {
		query = query.Where("end_time >= ?", from)
	}
	if to := c.Query("end_time_to"); to != "" {
		query = query.Where("end_time <= ?", to)
	}
	//  - current_bid
	// 目前實際價格是記錄在另外一張表(bids)中，所以需要透過join來查詢
	// 且如果目前沒有人出價，則需要使用起標價格來進行篩選
	if from := c.Query("current_bid_from"); from != "" {
		query = query.Where(`"CurrentBid".amount >= ? OR current_bid_id IS NULL AND starting_price >= ?`, from, from)
	}
	if to := c.Query("current_bid_to"); to != "" {
		query = query.Where(`"CurrentBid".amount <= ? OR current_bid_id IS NULL AND starting_price <= ?`, to, to)
	}
	//  - sort
	sortKey, desc := "title", false
	switch c.DefaultQuery("sort_key", "title") {
	case "title":
		sortKey = "title"
	case "start_time":
		sortKey = "start_time"
	case "end_time":
		sortKey = "end_time"
	case "start_price":
		sortKey = "starting_price"
	case "bid_count":
		sortKey = "bid_count"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid sort key"})
		return
	}
	desc = c.Query("sort_order") == "desc"
	query = query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: sortKey}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: false},
	}})
	//  - cursor
	if lastItemID := c.Query("last_item_id"); lastItemID != "" {
		var cursor string
		if result := impl.db.Model(&models.AuctionItem{}).Select(sortKey).Where("id = ?", lastItemID).First(&cursor); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"message": "Last item not found"})
				return
			}
			impl.internalError(c, fmt.Errorf("[%s] Fail to find last item, err=%w", op, result.Error))
			return
		}
		if desc {
			query = query.Where(sortKey+" < ?", cursor)
		} else {
			query = query.Where(sortKey+" > ?", cursor)
		}
		query = query.Or(sortKey+" = ? AND id > ?", cursor, lastItemID)
	}
	//  - size
	size := 20
	if _, err := fmt.Sscanf(c.DefaultQuery("size", "20"), "%d", &size); err != nil || size <= 0 {
		size = 20
	}
	query = query.Limit(size)
	//  - excludeEnded
	if c.Query("exclude_ended") == "true" {
		query = query.Where("end_time > ?", now).Where("status = ?", models.AuctionStatusActive)
	}
	// 查詢拍賣物品
	var auctions []models.AuctionItem
	if result := query.Find(&auctions); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list auction items, err=%w", op, result.Error))
		return
	}
	if len(auctions) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	output := make([]gin.H, len(auctions))
	for i, auction := range auctions {
		currentBid := auction.StartingPrice
		if auction.CurrentBid != nil {
			currentBid = auction.CurrentBid.Amount
		}
		output[i] = gin.H{
			"id":         auction.ID,
			"title":      auction.Title,
			"currentBid": currentBid,
			"bidCount":   auction.BidCount,
			"startTime":  auction.StartTime,
			"endTime":    auction.EndTime,
			"isEnded":    auction.IsEnded(now),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(auctions),
		"items": output,
	})
}

type PostBidRequest struct {
	Bid uint32 `json:"bid" binding:"required"`
}

// Place a bid on an auction item
// (POST /auction/item/:itemID/bids)
func (impl *ServerImpl) PostAuctionItemItemIDBids(c *gin.Context) {
	const op = "PostAuctionItemItemIDBids"
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	// 檢查拍賣物品是否存在
	auction := models.AuctionItem{ID: itemID}
	if result := impl.db.Preload("CurrentBid.User").First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusBadRequest)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error))
		return
	}
	// 檢查拍賣物品是否已經開始
	if time.Now().Before(auction.StartTime) {
		c.Status(http.StatusForbidden)
		return
	}
	// 檢查拍賣物品是否已經結束或被取消
	if auction.IsEnded(time.Now()) {
		c.Status(http.StatusGone)
		return
	}
	// 檢查使用者是否可以出價
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	var body PostBidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	// 取得Redis上商品的出價鎖
	lockKey := fmt.Sprintf("%sauction:%s:lock", impl.config.Redis.KeyPrefix, itemID)
	dMutex := redisAdapter.NewAutoRenewMutex(impl.redisClient, lockKey)
	lockCtx, err := dMutex.Lock(c)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err))
		return
	}
	defer func() {
		if _, err := dMutex.Unlock(); err != nil {
			slog.Warn("Fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	// 準備出價資訊
	auctionKey := fmt.Sprintf("%sauction:%s", impl.config.Redis.KeyPrefix, itemID)
	bidInfo := BidInfo{
		ItemID: itemID,
		User: BidInfoUser{
			ID:   uuid.MustParse(token.Subject),
			Name: token.Username,
		},
		Amount:    body.Bid,
		CreatedAt: time.Now(),
	}
	bidInfoBytes, err := msgpack.Marshal(bidInfo)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to marshal bid info, err=%w", op, err))
		return
	}
	bidInfoBase64 := base64.StdEncoding.EncodeToString(bidInfoBytes)
	expireTime := impl.config.Redis.ExpireTime.Seconds()
	runScript := func() (int, error) {
		return BidScript.Run(
			lockCtx, impl.redisClient,
			[]string{auctionKey, impl.config.Redis.StreamKeys.Bids},
			body.Bid, bidInfoBase64, expireTime, auction.MinIncrement,
		).Int()
	}
	// 透過Lua script來處理出價
	status, err := runScript()
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err))
		return
	}
	if status == -1 {
		// 將資料庫紀錄的最高出價寫入Redis後重試
		// NOTE: 由於每次出價都一定會更新Redis，所以除非從請求剛進來時系統向資料庫請求拍賣資訊，
		//       到取得鎖的過程中，拍賣物品的最高出價已經被其他人更新，且Redis的資料也過期，不然
		//       請求剛進來時系統向資料庫請求拍賣資訊都能確定是最新的。
		currentBid := auction.StartingPrice
		if auction.CurrentBidID != nil {
			currentBid = auction.CurrentBid.Amount
		}
		if err := impl.redisClient.Set(lockCtx, auctionKey, currentBid, impl.config.Redis.ExpireTime).Err(); err != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to update current bid in Redis, err=%w", op, err))
			return
		}
		status, err = runScript()
		if err != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err))
			return
		}
	}
	switch status {
	case 1:
		slog.Info("Higher bid occurs", slog.String("user", token.Subject), slog.Int64("bid", int64(body.Bid)), slog.String("auctionID", auction.ID.String()))
		metrics.BidsPlacedTotal.Inc()
		c.Status(http.StatusOK)
	case 0:
		metrics.BidsRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bid is below the minimum increment"})
	default:
		impl.internalError(c, fmt.Errorf("[%s] Invalid script return value: %d", op, status))
	}
}

// Close or cancel an auction early, owner only
// (POST /auction/item/:itemID/close)
func (impl *ServerImpl) PostAuctionItemItemIDClose(c *gin.Context) {
	const op = "PostAuctionItemItemIDClose"
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	auction := models.AuctionItem{ID: itemID}
	if result := impl.db.First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error))
		return
	}
	// 只有拍賣的擁有者可以提前結束拍賣
	if auction.UserID != uuid.MustParse(token.Subject) {
		c.Status(http.StatusForbidden)
		return
	}
	if auction.IsEnded(time.Now()) {
		c.Status(http.StatusGone)
		return
	}
	// 沒有任何出價時取消拍賣，否則視為提前結標
	status := models.AuctionStatusEnded
	if auction.BidCount == 0 {
		status = models.AuctionStatusCancelled
	}
	if result := impl.db.Model(&auction).Update("status", status); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to update auction status, err=%w", op, result.Error))
		return
	}
	// 將狀態變更廣播給所有即時會話
	if err := impl.statusProducer.Publish(StatusInfo{
		ItemID:    itemID,
		Status:    string(status),
		CreatedAt: time.Now(),
	}); err != nil {
		slog.Warn("Fail to publish status change", slog.String("op", op), slog.Any("error", err))
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
