package server

import (
	"strings"

	"crabber/internal/models"
	"crabber/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// notificationFilter reads ?type=like,reply, ?unread=true and ?unfollows=true.
func notificationFilter(c *fiber.Ctx) repository.NotificationFilter {
	var filter repository.NotificationFilter
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, models.NotificationType(t))
			}
		}
	}
	filter.UnreadOnly = c.QueryBool("unread", false)
	filter.IncludeUnfollows = c.QueryBool("unfollows", false)
	return filter
}

// GetNotifications handles GET /api/v1/me/notifications
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	q, err := parsePage(c, s.limits.NotifsPerPage, s.limits.APIMaxMoltLimit)
	if err != nil {
		return err
	}
	page, err := s.svc.Notifications.Notifications(c.UserContext(), actor(c), notificationFilter(c), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// UnreadCount handles GET /api/v1/me/notifications/unread
func (s *Server) UnreadCount(c *fiber.Ctx) error {
	n, err := s.svc.Notifications.UnreadCount(c.UserContext(), actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"unread": n})
}

// MarkRead handles PUT /api/v1/me/notifications/:id/read with {"read": bool}.
// An empty body marks the notification read.
func (s *Server) MarkRead(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req := struct {
		Read *bool `json:"read"`
	}{}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	read := req.Read == nil || *req.Read
	if err := s.svc.Notifications.MarkRead(c.UserContext(), actor(c), id, read); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/me/notifications/read
func (s *Server) MarkAllRead(c *fiber.Ctx) error {
	n, err := s.svc.Notifications.MarkAllRead(c.UserContext(), actor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked": n})
}
