package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dexhub/models"
)

// Get current user information
// (GET /user/info)
func (impl *ServerImpl) GetUserInfo(c *gin.Context) {
	const op = "GetUserInfo"
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	// 取得使用者資訊
	userID := uuid.MustParse(token.Subject)
	user := models.User{ID: userID}
	if result := impl.db.First(&user); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":    user.Username,
		"displayName": user.DisplayName,
		"bio":         user.Bio,
		"avatarUrl":   user.AvatarURL,
	})
}

type PatchUserInfoRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatarUrl"`
}

// Update current user information
// (PATCH /user/info)
func (impl *ServerImpl) PatchUserInfo(c *gin.Context) {
	const op = "PatchUserInfo"
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	var body PatchUserInfoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	updates := map[string]any{}
	if body.DisplayName != nil {
		displayName := strings.TrimSpace(*body.DisplayName)
		if displayName == "" {
			c.Status(http.StatusBadRequest)
			return
		}
		updates["display_name"] = displayName
	}
	if body.Bio != nil {
		updates["bio"] = impl.htmlChecker.Sanitize(*body.Bio)
	}
	if body.AvatarURL != nil {
		updates["avatar_url"] = *body.AvatarURL
	}
	if len(updates) == 0 {
		c.Status(http.StatusBadRequest)
		return
	}
	// 更新使用者資訊
	userID := uuid.MustParse(token.Subject)
	if result := impl.db.Model(&models.User{ID: userID}).Updates(updates); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to update user info, err=%w", op, result.Error))
		return
	}
	c.Status(http.StatusOK)
}

// popularityOf 計算使用者的人氣分數
// 追蹤者權重較高，打卡活躍度作為次要訊號，每次讀取時重新計算
func (impl *ServerImpl) popularityOf(userID uuid.UUID) (int64, error) {
	var followers int64
	if result := impl.db.Model(&models.Follow{}).Where("followee_id = ?", userID).Count(&followers); result.Error != nil {
		return 0, fmt.Errorf("fail to count followers, err=%w", result.Error)
	}
	var checkInDays int64
	row := impl.db.Model(&models.DexEntry{}).Select("COALESCE(SUM(check_in_days), 0)").Where("user_id = ?", userID).Row()
	if err := row.Scan(&checkInDays); err != nil {
		return 0, fmt.Errorf("fail to sum check-in days, err=%w", err)
	}
	return followers*10 + checkInDays, nil
}

// Get a user's public profile
// (GET /users/:userID)
func (impl *ServerImpl) GetUsersUserID(c *gin.Context) {
	const op = "GetUsersUserID"
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	user := models.User{ID: userID}
	if result := impl.db.First(&user); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	popularity, err := impl.popularityOf(userID)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to compute popularity, err=%w", op, err))
		return
	}
	var followers int64
	if result := impl.db.Model(&models.Follow{}).Where("followee_id = ?", userID).Count(&followers); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to count followers, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"bio":         user.Bio,
		"avatarUrl":   user.AvatarURL,
		"followers":   followers,
		"popularity":  popularity,
	})
}

// Follow a user
// (POST /users/:userID/follow)
func (impl *ServerImpl) PostUsersUserIDFollow(c *gin.Context) {
	const op = "PostUsersUserIDFollow"
	followeeID, err := uuid.Parse(c.Param("userID"))
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
	followerID := uuid.MustParse(token.Subject)
	if followerID == followeeID {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Cannot follow yourself"})
		return
	}
	// 檢查被追蹤的使用者是否存在
	followee := models.User{ID: followeeID}
	if result := impl.db.First(&followee); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}
	// 重複追蹤靠唯一索引擋下並保持冪等
	follow := models.Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
	if result := impl.db.Create(&follow); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.Status(http.StatusOK)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to create follow, err=%w", op, result.Error))
		return
	}
	c.Status(http.StatusCreated)
}

// Unfollow a user
// (DELETE /users/:userID/follow)
func (impl *ServerImpl) DeleteUsersUserIDFollow(c *gin.Context) {
	const op = "DeleteUsersUserIDFollow"
	followeeID, err := uuid.Parse(c.Param("userID"))
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
	followerID := uuid.MustParse(token.Subject)
	result := impl.db.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).Delete(&models.Follow{})
	if result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to delete follow, err=%w", op, result.Error))
		return
	}
	if result.RowsAffected == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}
