package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/catalog"
	"github.com/example/cardsched/internal/clock"
	"github.com/example/cardsched/internal/config"
	"github.com/example/cardsched/internal/database"
	"github.com/example/cardsched/internal/logging"
	"github.com/example/cardsched/internal/redisstore"
	"github.com/example/cardsched/internal/review"
	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	db       *sqlx.DB
	words    *database.WordRepository
	learners *database.LearnerRepository
	stats    *database.StatisticsRepository

	store     store.Store
	catalog   *catalog.Catalog
	clock     clock.Clock
	scheduler *scheduler.Scheduler
	recorder  *review.Recorder

	closers []func() error
}

// newBaseApp loads configuration and opens the SQL database that holds words and learners.
func newBaseApp() (*app, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	db, err := database.Connect(cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.words = database.NewWordRepository(db)
	a.learners = database.NewLearnerRepository(db)
	a.stats = database.NewStatisticsRepository(db)
	return a, nil
}

// newApp additionally opens the state store and builds the catalog, scheduler and recorder.
func newApp(ctx context.Context) (*app, error) {
	a, err := newBaseApp()
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	switch a.cfg.Store {
	case config.StoreMemory:
		a.store = store.NewMemory(a.cfg.HistoryLimit)
	case config.StoreSQL:
		a.store = database.NewStateStore(a.db, a.cfg.HistoryLimit, a.logger)
	case config.StoreRedis:
		rs, err := redisstore.Dial(ctx, a.cfg.RedisURL,
			redisstore.WithHistoryLimit(a.cfg.HistoryLimit), redisstore.WithLogger(a.logger))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		a.store = rs
	default:
		return fmt.Errorf("unknown store %q", a.cfg.Store)
	}

	words, err := a.words.GetAll(ctx)
	if err != nil {
		return err
	}
	a.catalog, err = catalog.FromWords(words, nil)
	if err != nil {
		return err
	}
	if a.catalog.Len() == 0 {
		a.logger.Warn("catalog is empty; run the import command first")
	}

	a.clock = clock.NewSystem(a.cfg.Location)
	mastery := a.cfg.MasteryModel()
	a.scheduler, err = scheduler.NewScheduler(a.catalog, a.store, mastery, a.clock, a.cfg.Queue,
		scheduler.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
		scheduler.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.recorder = review.NewRecorder(a.catalog, a.store, a.cfg.SM2(), mastery, a.clock,
		review.WithLogger(a.logger))

	a.logger.Info("components ready",
		zap.String("store", a.cfg.Store), zap.Int("cards", a.catalog.Len()))
	return nil
}

// ensureLearner registers learnerID unless it is already known.
func (a *app) ensureLearner(ctx context.Context, learnerID string) error {
	_, err := a.learners.GetByID(ctx, learnerID)
	if errors.Is(err, database.ErrLearnerNotFound) {
		return a.learners.Create(ctx, &models.Learner{ID: learnerID})
	}
	return err
}

// deleteLearner removes the learner and everything stored for them. The SQL state tables
// go with the learner row; other state stores are cleared first so a failure leaves the
// learner in place to retry.
func (a *app) deleteLearner(ctx context.Context, learnerID string) error {
	if _, err := a.learners.GetByID(ctx, learnerID); err != nil {
		return err
	}
	if a.cfg.Store != config.StoreSQL {
		if err := a.store.DeleteLearner(ctx, learnerID); err != nil {
			return fmt.Errorf("failed to delete learner state: %w", err)
		}
	}
	return a.learners.Delete(ctx, learnerID)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
