package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance-management-api/services"
)

type NotificationController struct {
	notifications *services.NotificationService
}

func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// GetUserNotifications lists the caller's notifications with the unread count.
func (nc *NotificationController) GetUserNotifications(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	unreadOnly, ok := queryBool(c, "unread_only")
	if !ok {
		return
	}

	list, err := nc.notifications.List(c.Request.Context(), caller, unreadOnly != nil && *unreadOnly, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (nc *NotificationController) MarkAsRead(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := nc.notifications.MarkRead(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (nc *NotificationController) MarkAllAsRead(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	updated, err := nc.notifications.MarkAllRead(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}
