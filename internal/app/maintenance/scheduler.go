package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/internal/services"
	"github.com/charlesng35/bitebell/pkg/logger"
)

const (
	defaultCampaignSpec = "@every 60s"
	defaultPurgeSpec    = "@hourly"
)

// CampaignProcessor dispatches campaigns whose scheduled time has passed.
type CampaignProcessor interface {
	ProcessScheduled(ctx context.Context) (services.ProcessResult, error)
}

// ExpiredPurger removes cache rows whose TTL has elapsed.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs the background jobs of the service: the campaign dispatcher on a short
// interval and the expired cache purge. Each job is wrapped so a slow pass is skipped
// rather than stacked.
type Scheduler struct {
	campaigns CampaignProcessor
	purger    ExpiredPurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger

	campaignSchedule string
	purgeSchedule    string

	dispatch cron.Job
	wg       sync.WaitGroup
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for purge comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCampaignSchedule overrides the cron specification for campaign dispatch.
func WithCampaignSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.campaignSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for the cache purge.
func WithPurgeSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.purgeSchedule = spec
		}
	}
}

// WithPurger enables the expired cache purge job.
func WithPurger(p ExpiredPurger) Option {
	return func(s *Scheduler) {
		s.purger = p
	}
}

// NewScheduler constructs a Scheduler. A nil campaign processor disables dispatch.
func NewScheduler(campaigns CampaignProcessor, opts ...Option) *Scheduler {
	s := &Scheduler{
		campaigns:        campaigns,
		now:              time.Now,
		campaignSchedule: defaultCampaignSpec,
		purgeSchedule:    defaultPurgeSpec,
		log:              logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cronLogger{log: s.log}))
	}
	s.dispatch = cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: s.log})).
		Then(cron.FuncJob(func() { s.dispatchCampaigns(context.Background()) }))
	return s
}

// Start registers the jobs, launches the cron loop and kicks off one dispatch pass
// immediately so campaigns due while the service was down go out without waiting.
func (s *Scheduler) Start() error {
	if s.campaigns != nil {
		if _, err := s.cron.AddJob(s.campaignSchedule, s.dispatch); err != nil {
			return fmt.Errorf("scheduler: campaign schedule %q: %w", s.campaignSchedule, err)
		}
	}

	if s.purger != nil {
		job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: s.log})).Then(cron.FuncJob(func() {
			if _, err := s.purger.PurgeExpired(context.Background(), s.now()); err != nil {
				s.log.Warn("cache purge failed", zap.Error(err))
			}
		}))
		if _, err := s.cron.AddJob(s.purgeSchedule, job); err != nil {
			return fmt.Errorf("scheduler: purge schedule %q: %w", s.purgeSchedule, err)
		}
	}

	s.cron.Start()

	if s.campaigns != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.dispatch.Run()
		}()
	}
	return nil
}

// Stop halts the scheduler. The returned context is done once every running job,
// including the start-up pass, has finished.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// RunOnce executes every configured job sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.campaigns != nil {
		if _, err := s.campaigns.ProcessScheduled(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if s.purger != nil {
		if _, err := s.purger.PurgeExpired(ctx, s.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Scheduler) dispatchCampaigns(ctx context.Context) {
	res, err := s.campaigns.ProcessScheduled(ctx)
	if err != nil {
		for _, e := range multierr.Errors(err) {
			s.log.Warn("campaign dispatch error", zap.Error(e))
		}
	}
	if res.Due > 0 {
		s.log.Debug("campaign dispatch pass",
			zap.Int("due", res.Due),
			zap.Int("sent", len(res.Sent)),
			zap.Int("skipped", len(res.Skipped)))
	}
}

// cronLogger routes robfig/cron diagnostics through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
