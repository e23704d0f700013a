// Package seed provides helpers to create demo data for the crabber
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"crabber/internal/models"
	"crabber/internal/observability"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Password is the plaintext password of every seeded crab.
const Password = "password123"

var nonWord = regexp.MustCompile(`\W+`)

// tagPool is the set of crabtags sprinkled through seeded molts.
var tagPool = []string{"crabs", "beach", "tidepool", "molting", "saltwater", "420", "waaahhhh", "SethRogen"}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder and tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	hash  string
	used  map[string]bool
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB. The
// password hash is computed once and shared by every crab it builds.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return &Factory{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		hash:   string(hashed),
		used:   make(map[string]bool),
		nextID: 1000,
	}, nil
}

// Username returns a random name matching the username rules that this
// factory has not handed out before.
func (f *Factory) Username() string {
	for {
		name := nonWord.ReplaceAllString(f.faker.Username(), "")
		name = fmt.Sprintf("%s%d", name, f.faker.Number(100, 999))
		if len(name) > 32 {
			name = name[len(name)-32:]
		}
		if key := strings.ToLower(name); !f.used[key] {
			f.used[key] = true
			return name
		}
	}
}

// BuildCrab constructs a crab without persisting it.
func (f *Factory) BuildCrab(overrides ...func(*models.Crab)) *models.Crab {
	username := f.Username()
	crab := &models.Crab{
		Username:     username,
		Email:        strings.ToLower(username) + "@example.com",
		Password:     f.hash,
		DisplayName:  f.faker.Name(),
		Description:  f.faker.Sentence(10),
		Location:     f.faker.City(),
		RawBio:       fmt.Sprintf(`{"emoji":%q,"jam":%q}`, f.faker.Emoji(), f.faker.Word()),
		Avatar:       fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
		Timezone:     models.DefaultTimezone,
		Preferences:  "{}",
		RegisterTime: f.pastTime(),
	}
	for _, override := range overrides {
		override(crab)
	}
	return crab
}

// CreateCrab constructs and persists a sample crab.
func (f *Factory) CreateCrab(overrides ...func(*models.Crab)) (*models.Crab, error) {
	crab := f.BuildCrab(overrides...)

	if f.opts.DryRun {
		f.nextID++
		crab.ID = f.nextID
		observability.Logger.Info("[dry-run] CreateCrab", slog.String("username", crab.Username))
		return crab, nil
	}

	if err := f.db.Create(crab).Error; err != nil {
		return nil, err
	}
	return crab, nil
}

// MoltContent returns a molt body with an occasional crabtag and mention of
// one of mentionable.
func (f *Factory) MoltContent(mentionable []*models.Crab) string {
	var sb strings.Builder
	sb.WriteString(f.faker.HipsterSentence(f.faker.Number(4, 12)))

	if f.faker.Number(1, 3) == 1 {
		sb.WriteString(" %")
		sb.WriteString(tagPool[f.faker.Number(0, len(tagPool)-1)])
	}
	if len(mentionable) > 0 && f.faker.Number(1, 4) == 1 {
		sb.WriteString(" @")
		sb.WriteString(mentionable[f.faker.Number(0, len(mentionable)-1)].Username)
	}
	return sb.String()
}

// pick returns n distinct elements from crabs, excluding skip.
func (f *Factory) pick(crabs []*models.Crab, n int, skip uint) []*models.Crab {
	out := make([]*models.Crab, 0, n)
	idx := indexes(len(crabs))
	f.faker.ShuffleInts(idx)
	for _, i := range idx {
		if len(out) == n {
			break
		}
		if crabs[i].ID != skip {
			out = append(out, crabs[i])
		}
	}
	return out
}

// chance reports true with probability percent/100.
func (f *Factory) chance(percent int) bool {
	return f.faker.Number(1, 100) <= percent
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return time.Now().UTC().Add(-back)
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
