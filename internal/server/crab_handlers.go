package server

import (
	"crabber/internal/middleware"
	"crabber/internal/models"
	"crabber/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CrabProfile is a crab with its structured bio and follow counts.
type CrabProfile struct {
	*models.Crab
	Bio         map[string]string `json:"bio"`
	Followers   int64             `json:"followers"`
	Following   int64             `json:"following"`
	IsFollowing *bool             `json:"is_following,omitempty"`
	IsBlocking  *bool             `json:"is_blocking,omitempty"`
}

// TokenResponse is returned when a credential is issued.
type TokenResponse struct {
	Token string      `json:"token"`
	Crab  models.Crab `json:"crab"`
}

// Signup handles POST /api/v1/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	crab, err := s.svc.Identity.CreateCrab(ctx, service.SignupInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
	})
	if err != nil {
		return err
	}
	at, err := s.svc.Tokens.IssueAccessToken(ctx, crab.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(TokenResponse{Token: at.Key, Crab: *crab})
}

// Login handles POST /api/v1/login. Each login issues a new access token.
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	crab, err := s.svc.Identity.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	at, err := s.svc.Tokens.IssueAccessToken(ctx, crab.ID)
	if err != nil {
		return err
	}
	return c.JSON(TokenResponse{Token: at.Key, Crab: *crab})
}

func (s *Server) profile(c *fiber.Ctx, crab *models.Crab) (*CrabProfile, error) {
	ctx := c.UserContext()
	bio, err := s.svc.Identity.Bio(crab)
	if err != nil {
		return nil, err
	}
	followers, err := s.svc.Graph.FollowerCount(ctx, crab.ID)
	if err != nil {
		return nil, err
	}
	following, err := s.svc.Graph.FollowingCount(ctx, crab.ID)
	if err != nil {
		return nil, err
	}
	p := &CrabProfile{Crab: crab, Bio: bio, Followers: followers, Following: following}

	if viewer := middleware.CurrentCrabID(c); viewer != 0 && viewer != crab.ID {
		is, err := s.svc.Graph.IsFollowing(ctx, viewer, crab.ID)
		if err != nil {
			return nil, err
		}
		p.IsFollowing = &is
		blocking, err := s.svc.Graph.IsBlocking(ctx, viewer, crab.ID)
		if err != nil {
			return nil, err
		}
		p.IsBlocking = &blocking
	}
	return p, nil
}

// GetMe handles GET /api/v1/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	crab, ok := middleware.CurrentCrab(c)
	if !ok {
		return models.NewUnauthorizedError("Authorization header required")
	}
	p, err := s.profile(c, crab)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// GetCrab handles GET /api/v1/crabs/:username
func (s *Server) GetCrab(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	p, err := s.profile(c, crab)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// UpdateBio handles PATCH /api/v1/me/bio
func (s *Server) UpdateBio(c *fiber.Ctx) error {
	var updates map[string]string
	if err := parseBody(c, &updates); err != nil {
		return err
	}
	crab, err := s.svc.Identity.UpdateBio(c.UserContext(), actor(c), updates)
	if err != nil {
		return err
	}
	p, err := s.profile(c, crab)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// ChangePassword handles PUT /api/v1/me/password
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.svc.Identity.ChangePassword(c.UserContext(), actor(c), req.Current, req.New); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetTimezone handles PUT /api/v1/me/timezone
func (s *Server) SetTimezone(c *fiber.Ctx) error {
	var req struct {
		Timezone string `json:"timezone"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.svc.Identity.SetTimezone(c.UserContext(), actor(c), req.Timezone); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMutedWords handles GET /api/v1/me/muted-words
func (s *Server) GetMutedWords(c *fiber.Ctx) error {
	words, err := s.svc.Identity.MutedWords(c.UserContext(), actor(c))
	if err != nil {
		return err
	}
	if words == nil {
		words = []string{}
	}
	return c.JSON(fiber.Map{"words": words})
}

// SetMutedWords handles PUT /api/v1/me/muted-words
func (s *Server) SetMutedWords(c *fiber.Ctx) error {
	var req struct {
		Words []string `json:"words"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	words, err := s.svc.Identity.SetMutedWords(c.UserContext(), actor(c), req.Words)
	if err != nil {
		return err
	}
	if words == nil {
		words = []string{}
	}
	return c.JSON(fiber.Map{"words": words})
}

// GetPreference handles GET /api/v1/me/preferences/:key
func (s *Server) GetPreference(c *fiber.Ctx) error {
	key := c.Params("key")
	value, err := s.svc.Identity.GetPreference(c.UserContext(), actor(c), key, nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"key": key, "value": value})
}

// SetPreference handles PUT /api/v1/me/preferences/:key
func (s *Server) SetPreference(c *fiber.Ctx) error {
	var req struct {
		Value interface{} `json:"value"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := s.svc.Identity.SetPreference(c.UserContext(), actor(c), c.Params("key"), req.Value); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PinMolt handles PUT /api/v1/me/pinned
func (s *Server) PinMolt(c *fiber.Ctx) error {
	var req struct {
		MoltID uint `json:"molt_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.MoltID == 0 {
		return models.NewValidationError("molt_id is required")
	}
	if err := s.svc.Identity.PinMolt(c.UserContext(), actor(c), req.MoltID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnpinMolt handles DELETE /api/v1/me/pinned
func (s *Server) UnpinMolt(c *fiber.Ctx) error {
	if err := s.svc.Identity.UnpinMolt(c.UserContext(), actor(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PinnedMolt handles GET /api/v1/crabs/:username/pinned
func (s *Server) PinnedMolt(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	molt, err := s.svc.Identity.PinnedMolt(c.UserContext(), crab.ID)
	if err != nil {
		return err
	}
	if molt == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(molt)
}

// Follow handles POST /api/v1/crabs/:username/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	target, err := s.crabParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Graph.Follow(c.UserContext(), actor(c), target.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unfollow handles DELETE /api/v1/crabs/:username/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	target, err := s.crabParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Graph.Unfollow(c.UserContext(), actor(c), target.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Block handles POST /api/v1/crabs/:username/block
func (s *Server) Block(c *fiber.Ctx) error {
	target, err := s.crabParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Graph.Block(c.UserContext(), actor(c), target.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Unblock handles DELETE /api/v1/crabs/:username/block
func (s *Server) Unblock(c *fiber.Ctx) error {
	target, err := s.crabParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Graph.Unblock(c.UserContext(), actor(c), target.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Blocked handles GET /api/v1/me/blocked
func (s *Server) Blocked(c *fiber.Ctx) error {
	q, err := s.crabPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Graph.Blocked(c.UserContext(), actor(c), q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Following handles GET /api/v1/crabs/:username/following
func (s *Server) Following(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	q, err := s.crabPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Graph.Following(c.UserContext(), crab.ID, q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Followers handles GET /api/v1/crabs/:username/followers
func (s *Server) Followers(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	q, err := s.crabPage(c)
	if err != nil {
		return err
	}
	page, err := s.svc.Graph.Followers(c.UserContext(), crab.ID, q)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// MutualFollows handles GET /api/v1/crabs/:username/mutual: crabs the caller
// follows who also follow :username.
func (s *Server) MutualFollows(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	mutual, err := s.svc.Graph.MutualFollows(c.UserContext(), actor(c), crab.ID)
	if err != nil {
		return err
	}
	if mutual == nil {
		mutual = []models.Crab{}
	}
	return c.JSON(mutual)
}

// Recommended handles GET /api/v1/me/recommended
func (s *Server) Recommended(c *fiber.Ctx) error {
	crabs, err := s.svc.Graph.Recommended(c.UserContext(), actor(c), s.limits.RecommendedLimit)
	if err != nil {
		return err
	}
	if crabs == nil {
		crabs = []models.Crab{}
	}
	return c.JSON(crabs)
}

// Trophies handles GET /api/v1/crabs/:username/trophies
func (s *Server) Trophies(c *fiber.Ctx) error {
	crab, err := s.crabParam(c)
	if err != nil {
		return err
	}
	trophies, err := s.svc.Awards.Trophies(c.UserContext(), crab.ID)
	if err != nil {
		return err
	}
	if trophies == nil {
		trophies = []models.TrophyCase{}
	}
	return c.JSON(trophies)
}

// IssueAccessToken handles POST /api/v1/me/tokens
func (s *Server) IssueAccessToken(c *fiber.Ctx) error {
	at, err := s.svc.Tokens.IssueAccessToken(c.UserContext(), actor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": at.Key})
}

// RevokeAccessToken handles DELETE /api/v1/me/tokens/:key
func (s *Server) RevokeAccessToken(c *fiber.Ctx) error {
	if err := s.svc.Tokens.RevokeAccessToken(c.UserContext(), actor(c), c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueDeveloperKey handles POST /api/v1/me/developer-keys
func (s *Server) IssueDeveloperKey(c *fiber.Ctx) error {
	dk, err := s.svc.Tokens.IssueDeveloperKey(c.UserContext(), actor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": dk.Key})
}

// RevokeDeveloperKey handles DELETE /api/v1/me/developer-keys/:key
func (s *Server) RevokeDeveloperKey(c *fiber.Ctx) error {
	if err := s.svc.Tokens.RevokeDeveloperKey(c.UserContext(), actor(c), c.Params("key")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
