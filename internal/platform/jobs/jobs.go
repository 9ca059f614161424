// Package jobs runs the background schedule. The only job today is the
// overdue sweep, which walks every clinic schema once a day so that
// date-dependent dashboard figures refresh even when nothing was edited.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bsm/redislock"
	"github.com/go-co-op/gocron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/websocket"
)

// ErrLocked is returned by a Locker when another instance holds the lock.
var ErrLocked = errors.New("lock held elsewhere")

// Locker serialises a job across server instances.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return lock.Release, nil
}

// Clinics enumerates clinic schemas and scopes work to one of them.
type Clinics interface {
	List(ctx context.Context) ([]string, error)
	Within(ctx context.Context, clinic string, fn func(context.Context) error) error
}

// PoolClinics is the Postgres implementation of Clinics.
type PoolClinics struct {
	Pool *pgxpool.Pool
}

func (p PoolClinics) List(ctx context.Context) ([]string, error) {
	return db.ListClinics(ctx, p.Pool)
}

func (p PoolClinics) Within(ctx context.Context, clinic string, fn func(context.Context) error) error {
	return db.WithinClinic(ctx, p.Pool, clinic, fn)
}

// OverdueSource reports the overdue receivables of the clinic bound to ctx.
type OverdueSource interface {
	Overdue(ctx context.Context, today civil.Date) (count int, amount decimal.Decimal, err error)
}

// OverdueSummary is the per-clinic sweep result, also sent as the data of
// the "overdue" websocket event.
type OverdueSummary struct {
	Clinic string          `json:"clinic"`
	Date   civil.Date      `json:"date"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

const sweepLockKey = "lock:overdue-sweep"

type OverdueSweep struct {
	clinics   Clinics
	source    OverdueSource
	notifier  cache.Notifier
	publisher websocket.Publisher
	locker    Locker
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOverdueSweep builds the sweep. locker and publisher may be nil.
func NewOverdueSweep(clinics Clinics, source OverdueSource, notifier cache.Notifier, publisher websocket.Publisher, locker Locker, loc *time.Location, logger zerolog.Logger) *OverdueSweep {
	if notifier == nil {
		notifier = cache.NopNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OverdueSweep{
		clinics:   clinics,
		source:    source,
		notifier:  notifier,
		publisher: publisher,
		locker:    locker,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With().Str("job", "overdue-sweep").Logger(),
	}
}

// Run sweeps every clinic. A failing clinic is logged and the rest still run;
// the returned error joins the failures.
func (s *OverdueSweep) Run(ctx context.Context) ([]OverdueSummary, error) {
	if s.locker != nil {
		unlock, err := s.locker.Obtain(ctx, sweepLockKey, 10*time.Minute)
		if errors.Is(err, ErrLocked) {
			s.logger.Info().Msg("sweep already running elsewhere, skipped")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("release sweep lock")
			}
		}()
	}

	clinics, err := s.clinics.List(ctx)
	if err != nil {
		return nil, err
	}

	today := civil.DateOf(s.now().In(s.loc))

	var (
		results []OverdueSummary
		errs    []error
	)
	for _, clinic := range clinics {
		err := s.clinics.Within(ctx, clinic, func(ctx context.Context) error {
			count, amount, err := s.source.Overdue(ctx, today)
			if err != nil {
				return err
			}
			summary := OverdueSummary{Clinic: clinic, Date: today, Count: count, Amount: amount}
			results = append(results, summary)

			s.notifier.Invalidate(ctx, cache.TopicTreatments)
			s.publish(ctx, summary)
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Str("clinic", clinic).Msg("overdue sweep failed")
			errs = append(errs, fmt.Errorf("clinic %s: %w", clinic, err))
		}
	}

	var total int
	for _, r := range results {
		total += r.Count
	}
	s.logger.Info().Int("clinics", len(clinics)).Int("overdue", total).Str("date", today.String()).Msg("overdue sweep finished")
	return results, errors.Join(errs...)
}

func (s *OverdueSweep) publish(ctx context.Context, summary OverdueSummary) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	ev := websocket.Event{
		Type:   websocket.EventOverdue,
		Clinic: summary.Clinic,
		Topic:  cache.TopicTreatments,
		Data:   data,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("clinic", summary.Clinic).Msg("overdue broadcast failed")
	}
}

// Scheduler wraps a gocron scheduler. Jobs never overlap with themselves.
type Scheduler struct {
	cron    *gocron.Scheduler
	timeout time.Duration
	logger  zerolog.Logger
}

func NewScheduler(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{cron: s, timeout: 10 * time.Minute, logger: logger}
}

// Add registers fn under a standard five-field cron expression.
func (s *Scheduler) Add(name, expr string, fn func(context.Context) error) error {
	_, err := s.cron.Cron(expr).Tag(name).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job done")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, expr, err)
	}
	return nil
}

func (s *Scheduler) Len() int { return len(s.cron.Jobs()) }

func (s *Scheduler) Start() { s.cron.StartAsync() }

func (s *Scheduler) Stop() { s.cron.Stop() }
