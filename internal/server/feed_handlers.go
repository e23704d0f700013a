package server

import (
	"crabber/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Timeline handles GET /api/v1/me/timeline
func (s *Server) Timeline(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.Timeline(c.UserContext(), actor(c), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Bookmarks handles GET /api/v1/me/bookmarks
func (s *Server) Bookmarks(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Engagement.Bookmarks(c.UserContext(), actor(c), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

type crabMoltLister func(c *fiber.Ctx, crab *models.Crab, q models.PageQuery) (models.Page[models.Molt], error)

// listForCrab runs list for the :username crab with the request's page.
func (s *Server) listForCrab(c *fiber.Ctx, list crabMoltLister) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := list(c, crab, q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// CrabMolts handles GET /api/v1/crabs/:username/molts
func (s *Server) CrabMolts(c *fiber.Ctx) error {
	return s.listForCrab(c, func(c *fiber.Ctx, crab *models.Crab, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.PostsByAuthor(c.UserContext(), crab.ID, q)
	})
}

// CrabReplies handles GET /api/v1/crabs/:username/replies
func (s *Server) CrabReplies(c *fiber.Ctx) error {
	return s.listForCrab(c, func(c *fiber.Ctx, crab *models.Crab, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.RepliesByAuthor(c.UserContext(), crab.ID, q)
	})
}

// CrabMentions handles GET /api/v1/crabs/:username/mentions
func (s *Server) CrabMentions(c *fiber.Ctx) error {
	return s.listForCrab(c, func(c *fiber.Ctx, crab *models.Crab, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.PostsMentioning(c.UserContext(), crab.Username, q)
	})
}

// CrabRepliedTo handles GET /api/v1/crabs/:username/replied-to
func (s *Server) CrabRepliedTo(c *fiber.Ctx) error {
	return s.listForCrab(c, func(c *fiber.Ctx, crab *models.Crab, q models.PageQuery) (models.Page[models.Molt], error) {
		return s.svc.Feed.PostsRepliedToAuthor(c.UserContext(), crab.Username, q)
	})
}

// TagMolts handles GET /api/v1/crabtags/:name
func (s *Server) TagMolts(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.PostsWithTag(c.UserContext(), c.Params("name"), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// TrendingTags handles GET /api/v1/crabtags/trending?days=...&limit=...
func (s *Server) TrendingTags(c *fiber.Ctx) error {
	days, limit := c.QueryInt("days", 0), c.QueryInt("limit", 0)
	if days < 0 || limit < 0 {
		return models.NewValidationError("days and limit must not be negative")
	}
	if limit > s.limits.APIMaxCrabLimit {
		limit = s.limits.APIMaxCrabLimit
	}
	tags, err := s.svc.Feed.TrendingTags(c.UserContext(), days, limit)
	if err != nil {
		return err
	}
	if tags == nil {
		tags = []models.Ranked[models.Crabtag]{}
	}
	return c.JSON(tags)
}

// SearchMolts handles GET /api/v1/molts/search?q=...
func (s *Server) SearchMolts(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.SearchPosts(c.UserContext(), c.Query("q"), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// SearchCrabs handles GET /api/v1/crabs/search?q=...
func (s *Server) SearchCrabs(c *fiber.Ctx) error {
	q, err := s.crabPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.SearchUsers(c.UserContext(), c.Query("q"), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// MostLiked handles GET /api/v1/molts/most-liked
func (s *Server) MostLiked(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.MostLiked(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// MostReplied handles GET /api/v1/molts/most-replied
func (s *Server) MostReplied(c *fiber.Ctx) error {
	q, err := s.moltPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.MostReplied(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// PopularCrabs handles GET /api/v1/crabs/popular
func (s *Server) PopularCrabs(c *fiber.Ctx) error {
	q, err := s.crabPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Feed.MostPopularUsers(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}
