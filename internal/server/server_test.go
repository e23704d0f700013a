package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		Port:                "8375",
		DBDriver:            "sqlite",
		AllowedOrigins:      "*",
		RateLimitEnabled:    false,
		RateLimitRequests:   60,
		RateLimitWindowS:    60,
		MoltCharLimit:       280,
		MinutesEditable:     5,
		APIDefaultMoltLimit: 10,
		APIMaxMoltLimit:     50,
		APIDefaultCrabLimit: 10,
		APIMaxCrabLimit:     50,
	}
}

func newTestServer(t *testing.T) (*Server, *fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	s := NewServer(testConfig(), db, nil)
	_, err := s.Services().Awards.SyncCatalog(context.Background())
	require.NoError(t, err)
	return s, s.App(), db
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// login inserts a crab and returns it with a fresh access token.
func login(t *testing.T, s *Server, db *gorm.DB, username string) (*models.Crab, string) {
	t.Helper()
	crab := testutil.Crab(t, db, username)
	at, err := s.Services().Tokens.IssueAccessToken(context.Background(), crab.ID)
	require.NoError(t, err)
	return crab, at.Key
}

// call performs a request and decodes a JSON response into out when non-nil.
func call(t *testing.T, app *fiber.App, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest, models.CodeValidation},
		{"not found", models.NewNotFoundError("Molt", 1), http.StatusNotFound, models.CodeNotFound},
		{"not editable", models.NewNotEditableError("too late"), http.StatusConflict, models.CodeNotEditable},
		{"forbidden", models.NewForbiddenError("nope"), http.StatusForbidden, models.CodeForbidden},
		{"unauthorized", models.NewUnauthorizedError("who"), http.StatusUnauthorized, models.CodeUnauthorized},
		{"conflict", models.NewConflictError("dup", nil), http.StatusConflict, models.CodeConflict},
		{"internal", models.NewInternalError(errors.New("db down")), http.StatusInternalServerError, models.CodeInternal},
		{"wrapped", errors.Join(errors.New("context"), models.NewForbiddenError("nope")), http.StatusForbidden, models.CodeForbidden},
		{"fiber not found", fiber.ErrNotFound, http.StatusNotFound, models.CodeNotFound},
		{"fiber bad request", fiber.ErrBadRequest, http.StatusBadRequest, models.CodeValidation},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, models.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}

	_, body := StatusFor(models.NewInternalError(errors.New("password=hunter2")))
	assert.NotContains(t, body.Error, "hunter2")
}

func TestParsePage(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/page", func(c *fiber.Ctx) error {
		q, err := parsePage(c, 10, 50)
		if err != nil {
			return err
		}
		resp := fiber.Map{"limit": q.Limit, "offset": q.Offset, "since_id": q.SinceID}
		if q.Since != nil {
			resp["since"] = q.Since.Unix()
		}
		return c.JSON(resp)
	})

	tests := []struct {
		query  string
		status int
		want   map[string]float64
	}{
		{"", http.StatusOK, map[string]float64{"limit": 10, "offset": 0}},
		{"?limit=500&offset=-3", http.StatusOK, map[string]float64{"limit": 50, "offset": 0}},
		{"?limit=0", http.StatusOK, map[string]float64{"limit": 10}},
		{"?limit=25&offset=5", http.StatusOK, map[string]float64{"limit": 25, "offset": 5}},
		{"?since=1700000000&since_id=42", http.StatusOK, map[string]float64{"since": 1700000000, "since_id": 42}},
		{"?since=yesterday", http.StatusBadRequest, nil},
		{"?since_id=-1", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var body map[string]interface{}
			status := call(t, app, http.MethodGet, "/page"+tt.query, "", nil, &body)
			assert.Equal(t, tt.status, status)
			for k, v := range tt.want {
				assert.Equal(t, v, body[k], k)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	_, app, _ := newTestServer(t)

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/health/live", "", nil, &body))
	assert.Equal(t, "up", body["status"])

	body = nil
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/health/ready", "", nil, &body))
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "disabled", checks["redis"])
}

func TestSignupAndLogin(t *testing.T) {
	_, app, _ := newTestServer(t)

	signup := map[string]string{
		"username":     "hermit",
		"email":        "hermit@example.com",
		"password":     "correct horse",
		"display_name": "Hermit",
	}
	var created TokenResponse
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/v1/signup", "", signup, &created))
	assert.Len(t, created.Token, 32)
	assert.Equal(t, "hermit", created.Crab.Username)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/api/v1/signup", "", signup, &errBody))
	assert.Equal(t, models.CodeValidation, errBody.Code)

	var me CrabProfile
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me", created.Token, nil, &me))
	assert.Equal(t, "hermit", me.Username)
	assert.Equal(t, map[string]string{}, me.Bio)

	var logged TokenResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/v1/login", "",
		map[string]string{"username": "HERMIT", "password": "correct horse"}, &logged))
	assert.NotEqual(t, created.Token, logged.Token)

	errBody = ErrorResponse{}
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodPost, "/api/v1/login", "",
		map[string]string{"username": "hermit", "password": "wrong horse"}, &errBody))
	assert.Equal(t, models.CodeUnauthorized, errBody.Code)

	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/v1/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/v1/me", "not-a-token", nil, nil))
}

func TestMoltLifecycle(t *testing.T) {
	s, app, db := newTestServer(t)
	_, aliceToken := login(t, s, db, "alice")
	bob, bobToken := login(t, s, db, "bob_")

	var molt models.Molt
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/v1/molts", aliceToken,
		map[string]string{"content": "hello @bob_ <b>%Crabs</b>"}, &molt))

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/api/v1/molts", aliceToken,
		map[string]string{"content": strings.Repeat("x", 281)}, &errBody))
	assert.Equal(t, models.CodeValidation, errBody.Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodPost, "/api/v1/molts", "",
		map[string]string{"content": "anonymous"}, nil))

	path := "/api/v1/molts/" + itoa(molt.ID)
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, path+"/like", bobToken, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, path+"/like", bobToken, nil, nil))

	var view MoltView
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, path, bobToken, nil, &view))
	assert.Equal(t, int64(1), view.Likes)
	require.NotNil(t, view.Liked)
	assert.True(t, *view.Liked)
	assert.Equal(t, []string{"crabs"}, view.Tags)
	assert.Contains(t, view.HTML, "&lt;b&gt;")
	assert.Contains(t, view.HTML, `href="/user/bob_"`)

	view = MoltView{}
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, path, "", nil, &view))
	assert.Nil(t, view.Liked)

	var reply models.Molt
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, path+"/replies", bobToken,
		map[string]string{"content": "hi back"}, &reply))
	assert.Equal(t, models.MoltKindReply, reply.Kind)

	var replies models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, path+"/replies", "", nil, &replies))
	assert.Equal(t, int64(1), replies.Total)
	assert.Equal(t, 10, replies.Limit)

	errBody = ErrorResponse{}
	assert.Equal(t, http.StatusForbidden, call(t, app, http.MethodPatch, path, bobToken,
		map[string]string{"content": "hijacked"}, &errBody))
	assert.Equal(t, models.CodeForbidden, errBody.Code)

	var edited models.Molt
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPatch, path, aliceToken,
		map[string]string{"content": "hello again"}, &edited))
	assert.True(t, edited.Edited)

	var notifs models.Page[models.Notification]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/notifications?type=reply", aliceToken, nil, &notifs))
	require.Len(t, notifs.Items, 1)
	require.NotNil(t, notifs.Items[0].SenderID)
	assert.Equal(t, bob.ID, *notifs.Items[0].SenderID)

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodDelete, path, aliceToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodGet, path, "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodGet, "/api/v1/molts/zero", "", nil, nil))
}

func TestFollowAndNotifications(t *testing.T) {
	s, app, db := newTestServer(t)
	_, aliceToken := login(t, s, db, "alice")
	_, bobToken := login(t, s, db, "bob_")

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, "/api/v1/crabs/bob_/follow", aliceToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodPost, "/api/v1/crabs/nobody/follow", aliceToken, nil, nil))

	var profile CrabProfile
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/bob_", aliceToken, nil, &profile))
	assert.Equal(t, int64(1), profile.Followers)
	require.NotNil(t, profile.IsFollowing)
	assert.True(t, *profile.IsFollowing)

	var followers models.Page[models.Crab]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/bob_/followers", "", nil, &followers))
	require.Len(t, followers.Items, 1)
	assert.Equal(t, "alice", followers.Items[0].Username)

	var trophies []models.TrophyCase
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/bob_/trophies", "", nil, &trophies))
	require.Len(t, trophies, 1)
	assert.Equal(t, "Social Newbie", trophies[0].Trophy.Title)

	var unread map[string]int64
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/notifications/unread", bobToken, nil, &unread))
	assert.Equal(t, int64(2), unread["unread"])

	var page models.Page[models.Notification]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/notifications?type=follow", bobToken, nil, &page))
	require.Len(t, page.Items, 1)
	notifPath := "/api/v1/me/notifications/" + itoa(page.Items[0].ID) + "/read"
	assert.Equal(t, http.StatusForbidden, call(t, app, http.MethodPut, notifPath, aliceToken, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPut, notifPath, bobToken, nil, nil))

	var marked map[string]int64
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, "/api/v1/me/notifications/read", bobToken, nil, &marked))
	assert.Equal(t, int64(1), marked["marked"])

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodDelete, "/api/v1/crabs/bob_/follow", aliceToken, nil, nil))
	profile = CrabProfile{}
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/bob_", "", nil, &profile))
	assert.Zero(t, profile.Followers)
	assert.Nil(t, profile.IsFollowing)
}

func TestBlocking(t *testing.T) {
	s, app, db := newTestServer(t)
	alice, aliceToken := login(t, s, db, "alice")
	_, bobToken := login(t, s, db, "bob_")
	testutil.Molt(t, db, alice, "alice speaks")

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, "/api/v1/crabs/alice/follow", bobToken, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, "/api/v1/crabs/bob_/block", aliceToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodPost, "/api/v1/crabs/bob_/block", "", nil, nil))

	var profile CrabProfile
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/bob_", aliceToken, nil, &profile))
	require.NotNil(t, profile.IsBlocking)
	assert.True(t, *profile.IsBlocking)
	assert.Zero(t, profile.Following, "the block drops bob's follow")

	assert.Equal(t, http.StatusForbidden, call(t, app, http.MethodPost, "/api/v1/crabs/alice/follow", bobToken, nil, nil))

	var molts models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/alice/molts", bobToken, nil, &molts))
	assert.Empty(t, molts.Items)
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/alice/molts", "", nil, &molts))
	assert.Len(t, molts.Items, 1)

	var blocked models.Page[models.Crab]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/blocked", aliceToken, nil, &blocked))
	require.Len(t, blocked.Items, 1)
	assert.Equal(t, "bob_", blocked.Items[0].Username)

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodDelete, "/api/v1/crabs/bob_/block", aliceToken, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPost, "/api/v1/crabs/alice/follow", bobToken, nil, nil))
}

func TestMutedWords(t *testing.T) {
	s, app, db := newTestServer(t)
	alice, _ := login(t, s, db, "alice")
	_, bobToken := login(t, s, db, "bob_")
	testutil.Molt(t, db, alice, "tide pools")
	testutil.Molt(t, db, alice, "sandcastles")

	var body map[string][]string
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPut, "/api/v1/me/muted-words", bobToken,
		map[string][]string{"words": {"Tide!"}}, &body))
	assert.Equal(t, []string{"tide"}, body["words"])
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/muted-words", bobToken, nil, &body))
	assert.Equal(t, []string{"tide"}, body["words"])

	var molts models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/alice/molts", bobToken, nil, &molts))
	require.Len(t, molts.Items, 1)
	assert.Equal(t, "sandcastles", molts.Items[0].Content)
}

func TestProfileAndTokens(t *testing.T) {
	s, app, db := newTestServer(t)
	_, token := login(t, s, db, "shelly")

	var profile CrabProfile
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPatch, "/api/v1/me/bio", token,
		map[string]string{"emoji": "🦀", "description": "Beach dweller"}, &profile))
	assert.Equal(t, "🦀", profile.Bio["emoji"])
	assert.Equal(t, "Beach dweller", profile.Description)

	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPut, "/api/v1/me/timezone", token,
		map[string]string{"timezone": "PST"}, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPut, "/api/v1/me/timezone", token,
		map[string]string{"timezone": "01.00"}, nil))

	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodPut, "/api/v1/me/preferences/dark_mode", token,
		map[string]interface{}{"value": true}, nil))
	var pref map[string]interface{}
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/preferences/dark_mode", token, nil, &pref))
	assert.Equal(t, true, pref["value"])

	var issued map[string]string
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/v1/me/tokens", token, nil, &issued))
	second := issued["token"]
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me", second, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, app, http.MethodDelete, "/api/v1/me/tokens/"+second, token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, app, http.MethodGet, "/api/v1/me", second, nil, nil))
}

func TestDiscovery(t *testing.T) {
	s, app, db := newTestServer(t)
	alice, aliceToken := login(t, s, db, "alice")
	testutil.Molt(t, db, alice, "first %Beach day")
	testutil.Molt(t, db, alice, "second %beach day")

	var tags []models.Ranked[models.Crabtag]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabtags/trending", "", nil, &tags))
	// fixture molts skip tag indexing
	assert.Empty(t, tags)

	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/v1/molts", aliceToken,
		map[string]string{"content": "third %Beach day"}, nil))
	tags = nil
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabtags/trending", "", nil, &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "beach", tags[0].Item.Name)
	tags = nil
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabtags/trending?days=30&limit=1", "", nil, &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodGet, "/api/v1/crabtags/trending?limit=-1", "", nil, nil))

	var found models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/molts/search?q=day&limit=2", "", nil, &found))
	assert.Equal(t, int64(3), found.Total)
	assert.Len(t, found.Items, 2)

	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodGet, "/api/v1/molts/search", "", nil, nil))

	var crabs models.Page[models.Crab]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/search?q=ali", "", nil, &crabs))
	require.Len(t, crabs.Items, 1)

	var timeline models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/me/timeline", aliceToken, nil, &timeline))
	assert.Equal(t, int64(3), timeline.Total)

	var byAuthor models.Page[models.Molt]
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/v1/crabs/alice/molts?limit=1", "", nil, &byAuthor))
	assert.Equal(t, int64(3), byAuthor.Total)
	assert.Len(t, byAuthor.Items, 1)
}
