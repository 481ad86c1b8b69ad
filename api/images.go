package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	internalS3 "dexhub/adapters/s3"
	"dexhub/models"
)

// Upload an image
// (POST /image)
func (impl *ServerImpl) PostImage(c *gin.Context) {
	const op = "PostImage"
	// 檢查使用者是否可以上傳圖片
	token, err := impl.currentUser(c)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusUnauthorized)
		return
	}
	//  - 檢查是否達到上傳限制
	userID := uuid.MustParse(token.Subject)
	var uploadedCount int64
	if result := impl.db.Model(&models.Image{UploaderID: userID}).Where("created_at > ?", time.Now().Add(-1*time.Hour)).Count(&uploadedCount); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, result.Error))
		return
	}
	if impl.config.S3.RateLimitPerHour > 0 && uploadedCount >= impl.config.S3.RateLimitPerHour {
		c.Status(http.StatusTooManyRequests)
		return
	}
	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	body := internalS3.NewMaxSizeReader(c.Request.Body, 5<<20)
	file, err := io.ReadAll(body)
	if errors.As(err, &internalS3.ErrReachLimitType) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to read image, err=%w", op, err))
		return
	}
	mimeType := http.DetectContentType(file)
	secure, ext := internalS3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("Invalid image type: %s", mimeType)})
		return
	}
	// 透過S3 API儲存圖片
	url, err := impl.s3Operator.UploadFileToS3(c, uuid.New().String()+"."+ext, mimeType, file)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}
	// 在DB紀錄圖片的上傳紀錄
	image := models.Image{
		UploaderID: userID,
		Url:        url,
	}
	if result := impl.db.Create(&image); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to create image, err=%w", op, result.Error))
		return
	}
	c.Header("Location", url)
	c.Status(http.StatusCreated)
}

// Delete an uploaded image
// (DELETE /image/:imageID)
func (impl *ServerImpl) DeleteImageImageID(c *gin.Context) {
	const op = "DeleteImageImageID"
	imageID, err := uuid.Parse(c.Param("imageID"))
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
	image := models.Image{ID: imageID}
	if result := impl.db.First(&image); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find image, err=%w", op, result.Error))
		return
	}
	// 只有上傳者本人可以刪除圖片
	if image.UploaderID != uuid.MustParse(token.Subject) {
		c.Status(http.StatusForbidden)
		return
	}
	// 先移除S3上的檔案再刪除紀錄，路徑為公開URL去掉基底位址
	path := strings.TrimPrefix(image.Url, impl.config.S3.PublicBaseURL+"/")
	if err := impl.s3Operator.DeleteFileFromS3(c, path); err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to delete image from S3, err=%w", op, err))
		return
	}
	if result := impl.db.Delete(&image); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to delete image record, err=%w", op, result.Error))
		return
	}
	c.Status(http.StatusOK)
}
