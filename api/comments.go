package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dexhub/models"
)

type PostCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// Post a comment on an auction item
// (POST /auction/item/:itemID/comments)
//
// 真實留言會被持久化並發佈到 stream，再由各即時會話合併進聊天室
func (impl *ServerImpl) PostAuctionItemItemIDComments(c *gin.Context) {
	const op = "PostAuctionItemItemIDComments"
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
	var body PostCommentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	content := strings.TrimSpace(impl.htmlChecker.Sanitize(body.Content))
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Empty comment"})
		return
	}
	// 檢查拍賣物品是否存在且尚未結束
	auction := models.AuctionItem{ID: itemID}
	if result := impl.db.First(&auction); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find auction item, err=%w", op, result.Error))
		return
	}
	if auction.IsEnded(time.Now()) {
		c.Status(http.StatusGone)
		return
	}
	// 查出留言者的顯示名稱
	userID := uuid.MustParse(token.Subject)
	user := models.User{ID: userID}
	if result := impl.db.First(&user); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	// 持久化留言
	comment := models.Comment{
		AuctionItemID: itemID,
		UserID:        userID,
		Content:       content,
	}
	if result := impl.db.Create(&comment); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to create comment, err=%w", op, result.Error))
		return
	}
	// 發佈到 stream，由SSE管理器廣播給各即時會話
	if err := impl.commentProducer.Publish(CommentInfo{
		ItemID: itemID,
		User: BidInfoUser{
			ID:   userID,
			Name: user.DisplayName,
		},
		Content:   content,
		CreatedAt: comment.CreatedAt,
	}); err != nil {
		slog.Warn("Fail to publish comment", slog.String("op", op), slog.Any("error", err))
	}
	c.Header("Location", comment.ID.String())
	c.Status(http.StatusCreated)
}

// List persisted comments of an auction item
// (GET /auction/item/:itemID/comments)
func (impl *ServerImpl) GetAuctionItemItemIDComments(c *gin.Context) {
	const op = "GetAuctionItemItemIDComments"
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	var comments []models.Comment
	if result := impl.db.
		Preload("User").
		Where("auction_item_id = ?", itemID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Limit(25).
		Find(&comments); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list comments, err=%w", op, result.Error))
		return
	}
	output := make([]gin.H, len(comments))
	for i, comment := range comments {
		output[i] = gin.H{
			"id":      comment.ID,
			"author":  comment.User.DisplayName,
			"content": comment.Content,
			"time":    comment.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(comments),
		"comments": output,
	})
}
