package server

import (
	"crabber/internal/middleware"
	"crabber/internal/models"
	"crabber/internal/service"

	"github.com/gofiber/fiber/v2"
)

// MoltView is a molt with its rendered HTML and engagement counts.
type MoltView struct {
	*models.Molt
	HTML       string   `json:"html"`
	Tags       []string `json:"tags"`
	Likes      int64    `json:"likes"`
	Liked      *bool    `json:"liked,omitempty"`
	Bookmarked *bool    `json:"bookmarked,omitempty"`
}

type moltRequest struct {
	Content string `json:"content"`
	Image   string `json:"image"`
	Source  string `json:"source"`
}

func (r moltRequest) options() service.MoltOptions {
	return service.MoltOptions{Image: r.Image, Source: r.Source}
}

// CreateMolt handles POST /api/v1/molts. Unlike the library entry point the
// API rejects over-long content instead of truncating it.
func (s *Server) CreateMolt(c *fiber.Ctx) error {
	var req moltRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	molt, err := s.svc.Content.CreateMoltValidated(c.UserContext(), actor(c), req.Content, req.options())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(molt)
}

// GetMolt handles GET /api/v1/molts/:id
func (s *Server) GetMolt(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	molt, err := s.svc.Content.GetMolt(ctx, id)
	if err != nil {
		return err
	}

	view := &MoltView{Molt: molt}
	if view.HTML, err = s.svc.Content.Render(ctx, molt.Content); err != nil {
		return err
	}
	if view.Tags, err = s.svc.Content.Tags(ctx, id); err != nil {
		return err
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	if view.Likes, err = s.svc.Engagement.LikeCount(ctx, id); err != nil {
		return err
	}
	if viewer := middleware.CurrentCrabID(c); viewer != 0 {
		liked, err := s.svc.Engagement.HasLiked(ctx, viewer, id)
		if err != nil {
			return err
		}
		bookmarked, err := s.svc.Engagement.HasBookmarked(ctx, viewer, id)
		if err != nil {
			return err
		}
		view.Liked, view.Bookmarked = &liked, &bookmarked
	}
	return c.JSON(view)
}

// EditMolt handles PATCH /api/v1/molts/:id
func (s *Server) EditMolt(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req moltRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	molt, err := s.svc.Content.EditMolt(c.UserContext(), actor(c), id, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(molt)
}

// DeleteMolt handles DELETE /api/v1/molts/:id
func (s *Server) DeleteMolt(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Content.DeleteMolt(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RestoreMolt handles POST /api/v1/molts/:id/restore
func (s *Server) RestoreMolt(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Content.RestoreMolt(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Reply handles POST /api/v1/molts/:id/replies
func (s *Server) Reply(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req moltRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	molt, err := s.svc.Content.Reply(c.UserContext(), actor(c), id, req.Content, req.options())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(molt)
}

// Quote handles POST /api/v1/molts/:id/quotes
func (s *Server) Quote(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req moltRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	molt, err := s.svc.Content.Quote(c.UserContext(), actor(c), id, req.Content, req.options())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(molt)
}

// Remolt handles POST /api/v1/molts/:id/remolt
func (s *Server) Remolt(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	molt, err := s.svc.Content.Remolt(c.UserContext(), actor(c), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(molt)
}

// Like handles POST /api/v1/molts/:id/like
func (s *Server) Like(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := s.svc.Engagement.Like(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unlike handles DELETE /api/v1/molts/:id/like
func (s *Server) Unlike(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Engagement.Unlike(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Bookmark handles POST /api/v1/molts/:id/bookmark
func (s *Server) Bookmark(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := s.svc.Engagement.Bookmark(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unbookmark handles DELETE /api/v1/molts/:id/bookmark
func (s *Server) Unbookmark(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Engagement.Unbookmark(c.UserContext(), actor(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Report handles POST /api/v1/molts/:id/report
func (s *Server) Report(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Content.Report(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

type moltLister func(c *fiber.Ctx, id uint, q models.PageQuery) (models.Page[models.Molt], error)

// listForMolt runs list for the :id molt with the request's page.
func (s *Server) listForMolt(c *fiber.Ctx, list moltLister) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := list(c, id, q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Replies handles GET /api/v1/molts/:id/replies
func (s *Server) Replies(c *fiber.Ctx) error {
	return s.listForMolt(c, func(c *fiber.Ctx, id uint, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.RepliesTo(c.UserContext(), id, q)
	})
}

// Remolts handles GET /api/v1/molts/:id/remolts
func (s *Server) Remolts(c *fiber.Ctx) error {
	return s.listForMolt(c, func(c *fiber.Ctx, id uint, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.RemoltsOf(c.UserContext(), id, q)
	})
}

// Quotes handles GET /api/v1/molts/:id/quotes
func (s *Server) Quotes(c *fiber.Ctx) error {
	return s.listForMolt(c, func(c *fiber.Ctx, id uint, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.QuotesOf(c.UserContext(), id, q)
	})
}
