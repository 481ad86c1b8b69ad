package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"dexhub/metrics"
	"dexhub/models"
)

const dayLayout = "2006-01-02"

// daysBetween 回傳兩個時間在UTC日期上相差的天數
func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.UTC().Year(), to.UTC().Month(), to.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay) / (24 * time.Hour))
}

// advanceStreak 根據上次打卡時間計算打卡後的連續天數與欠債
//   - 連續隔天打卡：有欠債先還債，否則連續天數加一
//   - 漏打卡 n 天：累積 n 筆欠債，本次打卡先還掉一筆，連續天數不動
//   - 同一天重複打卡不會走到這裡（由打卡紀錄的唯一索引擋下）
func advanceStreak(streak, debt uint32, lastCheckIn *time.Time, now time.Time) (uint32, uint32) {
	if lastCheckIn == nil {
		return 1, 0
	}
	gap := daysBetween(*lastCheckIn, now)
	switch {
	case gap <= 0:
		return streak, debt
	case gap == 1:
		if debt > 0 {
			return streak, debt - 1
		}
		return streak + 1, debt
	default:
		debt += uint32(gap - 1)
		return streak, debt - 1
	}
}

// Check in a dex card for today
// (POST /dex/:cardID/checkin)
func (impl *ServerImpl) PostDexCardIDCheckin(c *gin.Context) {
	const op = "PostDexCardIDCheckin"
	cardID, err := uuid.Parse(c.Param("cardID"))
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
	// 檢查卡片是否存在
	card := models.Card{ID: cardID}
	if result := impl.db.First(&card); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find card, err=%w", op, result.Error))
		return
	}
	// 取得或建立圖鑑條目
	userID := uuid.MustParse(token.Subject)
	entry := models.DexEntry{UserID: userID, CardID: cardID}
	if result := impl.db.Where(&models.DexEntry{UserID: userID, CardID: cardID}).FirstOrCreate(&entry); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find or create dex entry, err=%w", op, result.Error))
		return
	}
	// 先寫入打卡紀錄，同一天重複打卡靠唯一索引擋下並保持冪等
	now := time.Now()
	checkIn := models.CheckIn{
		DexEntryID: entry.ID,
		Day:        now.UTC().Format(dayLayout),
	}
	if result := impl.db.Create(&checkIn); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusOK, gin.H{
				"streak":      entry.Streak,
				"debt":        entry.Debt,
				"checkInDays": entry.CheckInDays,
			})
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to create check-in, err=%w", op, result.Error))
		return
	}
	// 更新簿記資訊
	entry.Streak, entry.Debt = advanceStreak(entry.Streak, entry.Debt, entry.LastCheckIn, now)
	entry.CheckInDays++
	entry.LastCheckIn = lo.ToPtr(now)
	if result := impl.db.Save(&entry); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to update dex entry, err=%w", op, result.Error))
		return
	}
	metrics.CheckInsTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"streak":      entry.Streak,
		"debt":        entry.Debt,
		"checkInDays": entry.CheckInDays,
	})
}

// List the current user's dex entries
// (GET /dex)
func (impl *ServerImpl) GetDex(c *gin.Context) {
	const op = "GetDex"
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	userID := uuid.MustParse(token.Subject)
	var entries []models.DexEntry
	if result := impl.db.Preload("Card").Where("user_id = ?", userID).Find(&entries); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list dex entries, err=%w", op, result.Error))
		return
	}
	output := make([]gin.H, len(entries))
	for i, entry := range entries {
		output[i] = gin.H{
			"card": gin.H{
				"id":     entry.Card.ID,
				"dexNo":  entry.Card.DexNo,
				"name":   entry.Card.Name,
				"series": entry.Card.Series,
				"rarity": entry.Card.Rarity,
			},
			"streak":      entry.Streak,
			"debt":        entry.Debt,
			"checkInDays": entry.CheckInDays,
			"lastCheckIn": entry.LastCheckIn,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": output,
	})
}
