package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crabber/internal/database"
	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumCrabs    int
	NumMolts    int
	MaxFollows  int
	MaxLikes    int
	MaxDays     int
	ShouldClean bool
	DryRun      bool
	FastHash    bool
	RandomSeed  int64
}

// Summary counts what a run created.
type Summary struct {
	Crabs   int
	Follows int
	Molts   int
	Likes   int
}

func (o *Options) defaults() {
	if o.NumCrabs <= 0 {
		o.NumCrabs = 20
	}
	if o.NumMolts < 0 {
		o.NumMolts = 0
	}
	if o.MaxFollows <= 0 {
		o.MaxFollows = 8
	}
	if o.MaxLikes <= 0 {
		o.MaxLikes = 5
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 30
	}
}

// steppedClock hands out strictly increasing times, one step per call.
type steppedClock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(c.step)
	return c.at
}

// Seed fills db with crabs, follows, molts and likes. Activity goes through
// the service layer so notifications and trophies are produced as well.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	opts.defaults()
	log := observability.Logger

	factory, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}

	if opts.ShouldClean && !opts.DryRun {
		log.Info("Cleaning database")
		if err := ClearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	summary := &Summary{}
	crabs := make([]*models.Crab, 0, opts.NumCrabs)
	for i := 0; i < opts.NumCrabs; i++ {
		crab, err := factory.CreateCrab()
		if err != nil {
			return nil, fmt.Errorf("create crab: %w", err)
		}
		crabs = append(crabs, crab)
	}
	summary.Crabs = len(crabs)

	if opts.DryRun {
		log.Info("[dry-run] skipping activity", slog.Int("molts", opts.NumMolts))
		return summary, nil
	}

	span := time.Duration(opts.MaxDays) * 24 * time.Hour
	// Only molt creation reads the clock, so molts spread evenly over span.
	clock := &steppedClock{at: time.Now().UTC().Add(-span), step: span / time.Duration(opts.NumMolts+1)}
	svc := service.New(db, service.Options{Clock: clock.Now})

	if _, err := svc.Awards.SyncCatalog(ctx); err != nil {
		return nil, fmt.Errorf("sync trophies: %w", err)
	}

	for _, crab := range crabs {
		n := factory.faker.Number(1, opts.MaxFollows)
		for _, target := range factory.pick(crabs, n, crab.ID) {
			if err := svc.Graph.Follow(ctx, crab.ID, target.ID); err != nil {
				return nil, fmt.Errorf("follow: %w", err)
			}
			summary.Follows++
		}
	}

	molts := make([]*models.Molt, 0, opts.NumMolts)
	for i := 0; i < opts.NumMolts; i++ {
		author := crabs[factory.faker.Number(0, len(crabs)-1)]
		molt, err := seedMolt(ctx, svc, factory, author, crabs, molts)
		if err != nil {
			return nil, err
		}
		if molt == nil {
			continue
		}
		molts = append(molts, molt)

		if molt.Kind == models.MoltKindRemolt {
			continue
		}
		likers := factory.pick(crabs, factory.faker.Number(0, opts.MaxLikes), author.ID)
		for _, liker := range likers {
			if _, err := svc.Engagement.Like(ctx, liker.ID, molt.ID); err != nil {
				return nil, fmt.Errorf("like: %w", err)
			}
			summary.Likes++
		}
	}
	summary.Molts = len(molts)

	log.Info("Seeding complete",
		slog.Int("crabs", summary.Crabs),
		slog.Int("follows", summary.Follows),
		slog.Int("molts", summary.Molts),
		slog.Int("likes", summary.Likes),
	)
	return summary, nil
}

// seedMolt posts an original most of the time and otherwise replies to,
// quotes or remolts an earlier molt. A nil molt means nothing was created.
func seedMolt(ctx context.Context, svc *service.Services, f *Factory, author *models.Crab, crabs []*models.Crab, earlier []*models.Molt) (*models.Molt, error) {
	content := f.MoltContent(crabs)
	if len(earlier) == 0 || f.chance(60) {
		molt, err := svc.Content.CreateMolt(ctx, author.ID, content, service.MoltOptions{Source: "crabber seed"})
		if err != nil {
			return nil, fmt.Errorf("create molt: %w", err)
		}
		return molt, nil
	}

	target := earlier[f.faker.Number(0, len(earlier)-1)]
	var (
		molt *models.Molt
		err  error
	)
	switch roll := f.faker.Number(1, 100); {
	case roll <= 60:
		molt, err = svc.Content.Reply(ctx, author.ID, target.ID, content, service.MoltOptions{})
	case roll <= 80:
		molt, err = svc.Content.Quote(ctx, author.ID, target.ID, content, service.MoltOptions{})
	default:
		molt, err = svc.Content.Remolt(ctx, author.ID, target.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("respond to molt %d: %w", target.ID, err)
	}
	return molt, nil
}

// ClearData removes every row from the application tables.
func ClearData(db *gorm.DB) error {
	tables := make([]string, 0, len(database.PersistentModels()))
	for _, model := range database.PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return err
		}
		tables = append(tables, stmt.Schema.Table)
	}

	if db.Dialector.Name() == "postgres" {
		return db.Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE").Error
	}

	// Children first so foreign keys hold on drivers without TRUNCATE.
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.Exec("DELETE FROM " + tables[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
