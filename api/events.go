package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dexhub/models"
)

// List community events
// (GET /events)
func (impl *ServerImpl) GetEvents(c *gin.Context) {
	const op = "GetEvents"
	query := impl.db.Model(&models.Event{}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "start_time"}})
	if c.Query("upcoming") == "true" {
		query = query.Where("end_time > ?", time.Now())
	}
	var events []models.Event
	if result := query.Find(&events); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list events, err=%w", op, result.Error))
		return
	}
	output := make([]gin.H, len(events))
	for i, event := range events {
		var registered int64
		if result := impl.db.Model(&models.EventRegistration{}).Where("event_id = ?", event.ID).Count(&registered); result.Error != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to count registrations, err=%w", op, result.Error))
			return
		}
		output[i] = gin.H{
			"id":          event.ID,
			"title":       event.Title,
			"description": event.Description,
			"location":    event.Location,
			"capacity":    event.Capacity,
			"registered":  registered,
			"startTime":   event.StartTime,
			"endTime":     event.EndTime,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": output,
	})
}

// Register for an event
// (POST /events/:eventID/registration)
func (impl *ServerImpl) PostEventsEventIDRegistration(c *gin.Context) {
	const op = "PostEventsEventIDRegistration"
	eventID, err := uuid.Parse(c.Param("eventID"))
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
	// 檢查活動是否存在且尚未結束
	event := models.Event{ID: eventID}
	if result := impl.db.First(&event); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find event, err=%w", op, result.Error))
		return
	}
	if time.Now().After(event.EndTime) {
		c.Status(http.StatusGone)
		return
	}
	// 檢查報名人數是否已達上限
	var registered int64
	if result := impl.db.Model(&models.EventRegistration{}).Where("event_id = ?", eventID).Count(&registered); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to count registrations, err=%w", op, result.Error))
		return
	}
	if event.Capacity > 0 && registered >= int64(event.Capacity) {
		c.JSON(http.StatusConflict, gin.H{"message": "Event is full"})
		return
	}
	// 重複報名靠唯一索引擋下並保持冪等
	registration := models.EventRegistration{
		EventID: eventID,
		UserID:  uuid.MustParse(token.Subject),
	}
	if result := impl.db.Create(&registration); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			c.Status(http.StatusOK)
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to create registration, err=%w", op, result.Error))
		return
	}
	c.Status(http.StatusCreated)
}

// Cancel an event registration
// (DELETE /events/:eventID/registration)
func (impl *ServerImpl) DeleteEventsEventIDRegistration(c *gin.Context) {
	const op = "DeleteEventsEventIDRegistration"
	eventID, err := uuid.Parse(c.Param("eventID"))
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
	userID := uuid.MustParse(token.Subject)
	result := impl.db.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&models.EventRegistration{})
	if result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to delete registration, err=%w", op, result.Error))
		return
	}
	if result.RowsAffected == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}
