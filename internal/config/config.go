// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/spaced_repetition"
	"github.com/example/cardsched/internal/store"
	"github.com/example/cardsched/pkg/models"
)

// ErrInvalid is returned for a setting outside its allowed range.
var ErrInvalid = errors.New("config: invalid value")

// Store backends
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

// DefaultSessionLimit is the number of cards studied in one sitting.
const DefaultSessionLimit = 40

// Config is the complete runtime configuration.
type Config struct {
	Queue        scheduler.Config
	Mastery      models.MasteryState
	MinEase      float64
	InitialEase  float64
	HistoryLimit int
	SessionLimit int

	Store       string
	DBType      string
	DatabaseURL string
	RedisURL    string

	Location       *time.Location
	LogLevel       string
	LogDevelopment bool

	TelegramToken string
	ReminderHour  int
	MetricsAddr   string // empty disables the metrics endpoint
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Queue:        scheduler.DefaultConfig(),
		Mastery:      bkt.Defaults,
		MinEase:      spaced_repetition.MinEase,
		InitialEase:  spaced_repetition.InitialEase,
		HistoryLimit: store.DefaultHistoryLimit,
		SessionLimit: DefaultSessionLimit,
		Store:        StoreSQL,
		DBType:       "sqlite",
		DatabaseURL:  "data/cardsched.db",
		Location:     time.UTC,
		LogLevel:     "info",
		ReminderHour: scheduler.DefaultReminderHour,
		MetricsAddr:  ":9090",
	}
}

// Load reads the given .env files (".env" when none are named; a missing file is
// not an error) and then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	c.Queue.NewCardsPerSession = p.int("NEW_CARDS_PER_SESSION", c.Queue.NewCardsPerSession)
	c.Queue.MaxSessionSize = p.int("MAX_SESSION_SIZE", c.Queue.MaxSessionSize)
	c.Queue.Stride = p.int("INTERLEAVE_STRIDE", c.Queue.Stride)
	c.Queue.Epsilon = p.float("TIE_EPSILON", c.Queue.Epsilon)

	c.Mastery.PKnown = p.float("BKT_P_KNOWN", c.Mastery.PKnown)
	c.Mastery.PLearn = p.float("BKT_P_LEARN", c.Mastery.PLearn)
	c.Mastery.PGuess = p.float("BKT_P_GUESS", c.Mastery.PGuess)
	c.Mastery.PSlip = p.float("BKT_P_SLIP", c.Mastery.PSlip)

	c.MinEase = p.float("SM2_MIN_EASE", c.MinEase)
	c.InitialEase = p.float("SM2_INITIAL_EASE", c.InitialEase)
	c.HistoryLimit = p.int("HISTORY_LIMIT", c.HistoryLimit)
	c.SessionLimit = p.int("SESSION_LIMIT", c.SessionLimit)

	c.Store = strings.ToLower(p.string("STORE", c.Store))
	c.DBType = strings.ToLower(p.string("DB_TYPE", c.DBType))
	c.DatabaseURL = p.string("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = p.string("REDIS_URL", c.RedisURL)

	if tz := p.string("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			p.fail("TIMEZONE", tz, err)
		} else {
			c.Location = loc
		}
	}
	c.LogLevel = p.string("LOG_LEVEL", c.LogLevel)
	c.LogDevelopment = p.bool("LOG_DEVELOPMENT", c.LogDevelopment)

	c.TelegramToken = p.string("TELEGRAM_BOT_TOKEN", "")
	c.ReminderHour = p.int("REMINDER_HOUR", c.ReminderHour)
	if v, ok := lookup("METRICS_ADDR"); ok {
		c.MetricsAddr = strings.TrimSpace(v)
	}

	if p.err != nil {
		return Config{}, p.err
	}
	c.Mastery = bkt.Clamp(c.Mastery)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every setting's range.
func (c Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch {
	case c.MinEase <= 0:
		return fmt.Errorf("%w: SM2_MIN_EASE %v must be positive", ErrInvalid, c.MinEase)
	case c.InitialEase < c.MinEase:
		return fmt.Errorf("%w: SM2_INITIAL_EASE %v below SM2_MIN_EASE %v", ErrInvalid, c.InitialEase, c.MinEase)
	case c.HistoryLimit < 1:
		return fmt.Errorf("%w: HISTORY_LIMIT %d < 1", ErrInvalid, c.HistoryLimit)
	case c.SessionLimit < 1:
		return fmt.Errorf("%w: SESSION_LIMIT %d < 1", ErrInvalid, c.SessionLimit)
	case c.ReminderHour < 0 || c.ReminderHour > 23:
		return fmt.Errorf("%w: REMINDER_HOUR %d outside 0-23", ErrInvalid, c.ReminderHour)
	}
	switch c.Store {
	case StoreMemory, StoreSQL:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: STORE=redis requires REDIS_URL", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: STORE %q", ErrInvalid, c.Store)
	}
	if c.Store == StoreSQL && c.DBType != "sqlite" && c.DBType != "postgres" {
		return fmt.Errorf("%w: DB_TYPE %q", ErrInvalid, c.DBType)
	}
	return nil
}

// SM2 returns the interval model for the configured ease bounds.
func (c Config) SM2() *spaced_repetition.SM2 {
	sm := spaced_repetition.NewSM2()
	sm.MinEase = c.MinEase
	sm.InitialEase = c.InitialEase
	return sm
}

// MasteryModel returns the mastery model for the configured defaults.
func (c Config) MasteryModel() *bkt.Model {
	return bkt.NewModel(c.Mastery, nil)
}

// parser records the first malformed variable.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err)
	}
}

func (p *parser) string(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}
