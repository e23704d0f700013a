package service

import (
	"context"
	"encoding/json"
	"strings"

	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"
	"crabber/internal/richtext"
	"crabber/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// SignupInput carries the fields of a new account.
type SignupInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	Avatar      string
}

// IdentityService owns crab accounts, profiles and moderation flags.
type IdentityService struct {
	tx       repository.Transactor
	crabs    repository.CrabRepository
	molts    repository.MoltRepository
	follows  repository.FollowRepository
	awards   *AwardService
	rankings *cache.Cache
	limits   config.Limits
	now      Clock
	hashCost int
}

func NewIdentityService(
	tx repository.Transactor,
	crabs repository.CrabRepository,
	molts repository.MoltRepository,
	follows repository.FollowRepository,
	awards *AwardService,
	rankings *cache.Cache,
	limits config.Limits,
	now Clock,
) *IdentityService {
	if now == nil {
		now = SystemClock
	}
	return &IdentityService{
		tx:       tx,
		crabs:    crabs,
		molts:    molts,
		follows:  follows,
		awards:   awards,
		rankings: rankings,
		limits:   limits,
		now:      now,
		hashCost: bcrypt.DefaultCost,
	}
}

// CreateCrab registers a new account.
func (s *IdentityService) CreateCrab(ctx context.Context, in SignupInput) (crab *models.Crab, err error) {
	ctx, span := observability.StartSpan(ctx, "IdentityService.CreateCrab", attribute.String("crab.username", in.Username))
	defer func() { observability.EndSpan(span, err) }()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateLength("display name", in.DisplayName, s.limits.Profile.DisplayName, true); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	avatar := in.Avatar
	if avatar == "" {
		avatar = models.DefaultAvatar
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.crabs.UsernameTaken(ctx, in.Username)
		if err != nil {
			return err
		}
		if taken {
			return models.NewValidationError("Username taken")
		}
		taken, err = s.crabs.EmailTaken(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return models.NewValidationError("Email taken")
		}

		crab = &models.Crab{
			Username:     in.Username,
			Email:        in.Email,
			Password:     string(hash),
			DisplayName:  in.DisplayName,
			Description:  models.DefaultDescription,
			RawBio:       "{}",
			Avatar:       avatar,
			Timezone:     models.DefaultTimezone,
			Preferences:  "{}",
			RegisterTime: s.now(),
		}
		return s.crabs.Create(ctx, crab)
	})
	if err != nil {
		return nil, err
	}

	observability.Logger.InfoContext(ctx, "crab registered",
		"crab_id", crab.ID,
		"username", crab.Username,
	)
	return crab, nil
}

// GetCrab returns a visible crab.
func (s *IdentityService) GetCrab(ctx context.Context, id uint) (*models.Crab, error) {
	return s.crabs.GetByID(ctx, id)
}

// GetCrabByUsername returns a visible crab, matching case-insensitively.
func (s *IdentityService) GetCrabByUsername(ctx context.Context, username string) (*models.Crab, error) {
	return s.crabs.GetByUsername(ctx, username)
}

// VerifyPassword reports whether plaintext matches the crab's password hash.
func (s *IdentityService) VerifyPassword(crab *models.Crab, plaintext string) bool {
	if crab == nil || crab.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(crab.Password), []byte(plaintext)) == nil
}

// Authenticate resolves a visible crab by username and password.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*models.Crab, error) {
	crab, err := s.crabs.GetByUsername(ctx, username)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Invalid username or password")
		}
		return nil, err
	}
	if !s.VerifyPassword(crab, password) {
		return nil, models.NewUnauthorizedError("Invalid username or password")
	}
	return crab, nil
}

func (s *IdentityService) ChangePassword(ctx context.Context, crabID uint, current, next string) error {
	if err := validation.ValidatePassword(next); err != nil {
		return models.NewValidationError(err.Error())
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		crab, err := s.crabs.GetByID(ctx, crabID)
		if err != nil {
			return err
		}
		if !s.VerifyPassword(crab, current) {
			return models.NewForbiddenError("Current password is incorrect")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
		if err != nil {
			return models.NewInternalError(err)
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"password": string(hash)})
	})
}

// profileColumns are the update keys that map to their own crab columns
// instead of the bio map.
var profileColumns = []string{"description", "location", "website"}

// UpdateBio merges whitelisted keys into the crab's bio. Empty bio values
// remove the key. Description, location and website update their columns
// only when non-empty. Any other key is ignored.
func (s *IdentityService) UpdateBio(ctx context.Context, crabID uint, updates map[string]string) (crab *models.Crab, err error) {
	bioLimits := s.limits.Profile.Bio
	columnLimits := map[string]int{
		"description": s.limits.Profile.Description,
		"location":    s.limits.Profile.Location,
		"website":     s.limits.Profile.Website,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.crabs.GetByID(ctx, crabID)
		if err != nil {
			return err
		}
		bio, err := decodeBio(current.RawBio)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		for _, key := range models.BioKeys {
			value, ok := updates[key]
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				delete(bio, key)
				continue
			}
			if err := validation.ValidateLength(key, value, bioLimits[key], false); err != nil {
				return models.NewValidationError(err.Error())
			}
			bio[key] = value
		}
		for _, column := range profileColumns {
			value := strings.TrimSpace(updates[column])
			if value == "" {
				continue
			}
			if err := validation.ValidateLength(column, value, columnLimits[column], false); err != nil {
				return models.NewValidationError(err.Error())
			}
			fields[column] = value
		}

		raw, err := json.Marshal(bio)
		if err != nil {
			return models.NewInternalError(err)
		}
		fields["raw_bio"] = string(raw)
		if err := s.crabs.Update(ctx, crabID, fields); err != nil {
			return err
		}
		crab, err = s.crabs.GetByID(ctx, crabID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return crab, nil
}

// Bio decodes the crab's structured bio.
func (s *IdentityService) Bio(crab *models.Crab) (map[string]string, error) {
	return decodeBio(crab.RawBio)
}

func decodeBio(raw string) (map[string]string, error) {
	bio := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return bio, nil
	}
	if err := json.Unmarshal([]byte(raw), &bio); err != nil {
		return nil, models.NewInternalError(err)
	}
	return bio, nil
}

func decodePreferences(raw string) (map[string]interface{}, error) {
	prefs := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, models.NewInternalError(err)
	}
	return prefs, nil
}

// SetPreference stores value under key in the crab's preferences blob.
func (s *IdentityService) SetPreference(ctx context.Context, crabID uint, key string, value interface{}) error {
	if strings.TrimSpace(key) == "" {
		return models.NewValidationError("Preference key is required")
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		crab, err := s.crabs.GetByID(ctx, crabID)
		if err != nil {
			return err
		}
		prefs, err := decodePreferences(crab.Preferences)
		if err != nil {
			return err
		}
		prefs[key] = value
		raw, err := json.Marshal(prefs)
		if err != nil {
			return models.NewValidationError("Preference value is not serializable")
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"preferences": string(raw)})
	})
}

// GetPreference returns the value stored under key, or def when unset.
// Numbers come back as float64.
func (s *IdentityService) GetPreference(ctx context.Context, crabID uint, key string, def interface{}) (interface{}, error) {
	crab, err := s.crabs.GetByID(ctx, crabID)
	if err != nil {
		return nil, err
	}
	prefs, err := decodePreferences(crab.Preferences)
	if err != nil {
		return nil, err
	}
	if value, ok := prefs[key]; ok {
		return value, nil
	}
	return def, nil
}

// SetMutedWords replaces the crab's muted words and returns them normalized.
func (s *IdentityService) SetMutedWords(ctx context.Context, crabID uint, words []string) ([]string, error) {
	muted := validation.NormalizeMutedWords(words, models.MutedWordsLimit)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"muted_words": strings.Join(muted, ",")})
	})
	if err != nil {
		return nil, err
	}
	return muted, nil
}

func (s *IdentityService) MutedWords(ctx context.Context, crabID uint) ([]string, error) {
	crab, err := s.crabs.GetByID(ctx, crabID)
	if err != nil {
		return nil, err
	}
	return crab.MutedWordList(), nil
}

// SetTimezone stores the crab's hour offset, in the "-06.00" form.
func (s *IdentityService) SetTimezone(ctx context.Context, crabID uint, offset string) error {
	if !richtext.ValidTimezone(offset) {
		return models.NewValidationError("Timezone must look like -06.00")
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"timezone": offset})
	})
}

func (s *IdentityService) Ban(ctx context.Context, crabID uint) error {
	return s.setFlag(ctx, crabID, "banned", true)
}

func (s *IdentityService) Unban(ctx context.Context, crabID uint) error {
	return s.setFlag(ctx, crabID, "banned", false)
}

func (s *IdentityService) SoftDelete(ctx context.Context, crabID uint) error {
	return s.setFlag(ctx, crabID, "deleted", true)
}

func (s *IdentityService) Restore(ctx context.Context, crabID uint) error {
	return s.setFlag(ctx, crabID, "deleted", false)
}

// setFlag flips a moderation flag. Setting a flag to its current value is a no-op.
func (s *IdentityService) setFlag(ctx context.Context, crabID uint, column string, value bool) (err error) {
	ctx, span := observability.StartSpan(ctx, "IdentityService.setFlag",
		attribute.Int64("crab.id", int64(crabID)),
		attribute.String("flag", column),
		attribute.Bool("value", value),
	)
	defer func() { observability.EndSpan(span, err) }()

	changed := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		crab, err := s.crabs.GetByIDIncludingInvisible(ctx, crabID)
		if err != nil {
			return err
		}
		current := crab.Banned
		if column == "deleted" {
			current = crab.Deleted
		}
		if current == value {
			return nil
		}
		if err := s.crabs.Update(ctx, crabID, map[string]interface{}{column: value}); err != nil {
			return err
		}
		observability.Logger.InfoContext(ctx, "crab moderation flag changed",
			"crab_id", crabID,
			"flag", column,
			"value", value,
		)
		changed = true
		return nil
	})
	if err == nil && changed {
		s.rankings.InvalidateRankings(ctx)
	}
	return err
}

// Verify marks the crab verified and awards every visible crab it follows.
func (s *IdentityService) Verify(ctx context.Context, crabID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "IdentityService.Verify", attribute.Int64("crab.id", int64(crabID)))
	defer func() { observability.EndSpan(span, err) }()

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		crab, err := s.crabs.GetByID(ctx, crabID)
		if err != nil {
			return err
		}
		if !crab.Verified {
			if err := s.crabs.Update(ctx, crabID, map[string]interface{}{"verified": true}); err != nil {
				return err
			}
			crab.Verified = true
		}
		following, err := s.follows.FollowingIDs(ctx, crabID)
		if err != nil {
			return err
		}
		for _, id := range following {
			if err := s.awards.CheckVerifiedFollower(ctx, crab, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *IdentityService) Unverify(ctx context.Context, crabID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByIDIncludingInvisible(ctx, crabID); err != nil {
			return err
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"verified": false})
	})
}

// PinMolt pins one of the crab's own visible molts to its profile.
func (s *IdentityService) PinMolt(ctx context.Context, crabID, moltID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		molt, err := s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		if molt.AuthorID != crabID {
			return models.NewForbiddenError("You can only pin your own molts")
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"pinned_molt_id": molt.ID})
	})
}

func (s *IdentityService) UnpinMolt(ctx context.Context, crabID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
			return err
		}
		return s.crabs.Update(ctx, crabID, map[string]interface{}{"pinned_molt_id": nil})
	})
}

// PinnedMolt returns the crab's pinned molt, or nil when none is pinned or
// the pinned molt is no longer visible.
func (s *IdentityService) PinnedMolt(ctx context.Context, crabID uint) (*models.Molt, error) {
	crab, err := s.crabs.GetByID(ctx, crabID)
	if err != nil {
		return nil, err
	}
	if crab.PinnedMoltID == nil {
		return nil, nil
	}
	molt, err := s.molts.GetByID(ctx, *crab.PinnedMoltID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return molt, nil
}
