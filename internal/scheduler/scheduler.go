// Package scheduler runs the periodic jobs of the notifier: the daily occasion announcement and the
// duplicate registration sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/redismutex"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/utils"
)

//Announcer -_-
type Announcer interface {
	Announce(ctx context.Context, a dispatch.Announcement) (dispatch.Report, error)
}

//Sweeper -_-
type Sweeper interface {
	CleanDuplicates(ctx context.Context) (registry.SweepReport, error)
}

//Options -_-
type Options struct {
	AnnouncementHour int
	Location         *time.Location
	CheckOnStartup   bool
	// SweepInterval of zero disables the duplicate sweep.
	SweepInterval time.Duration
}

//Scheduler -_-
type Scheduler struct {
	calendar  Calendar
	announcer Announcer
	sweeper   Sweeper
	mutexes   redismutex.MutexManager
	opts      Options
	now       func() time.Time
}

//New Calendar may be nil, then no announcements are scheduled.
func New(calendar Calendar, announcer Announcer, sweeper Sweeper, mutexes redismutex.MutexManager, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		calendar:  calendar,
		announcer: announcer,
		sweeper:   sweeper,
		mutexes:   mutexes,
		opts:      opts,
		now:       utils.GetTimeNow,
	}
}

//Run Runs the jobs until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("scheduler.Run")

	if s.calendar != nil && s.opts.CheckOnStartup {
		if err := s.CheckAnnouncement(ctx); err != nil {
			logger.Errorf("Startup announcement check failed: %+v", err)
		}
	}

	var announce <-chan time.Time
	var announceTimer *time.Timer
	if s.calendar != nil {
		announceTimer = time.NewTimer(s.untilNextAnnouncement())
		defer announceTimer.Stop()
		announce = announceTimer.C
		logger.Infof("Announcement check scheduled daily at %02d:00 %v", s.opts.AnnouncementHour, s.opts.Location)
	}

	var sweep <-chan time.Time
	if s.sweeper != nil && s.opts.SweepInterval > 0 {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-announce:
			if err := s.CheckAnnouncement(ctx); err != nil {
				logger.Errorf("Scheduled announcement failed: %+v", err)
			}
			announceTimer.Reset(s.untilNextAnnouncement())
		case <-sweep:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Errorf("Duplicate sweep failed: %+v", err)
			}
		}
	}
}

//NextAnnouncement The next time the announcement check runs after now.
func NextAnnouncement(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

func (s *Scheduler) untilNextAnnouncement() time.Duration {
	now := s.now()
	return NextAnnouncement(now, s.opts.AnnouncementHour, s.opts.Location).Sub(now)
}

//CheckAnnouncement Announces today's occasion, once per day across all instances.
func (s *Scheduler) CheckAnnouncement(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("scheduler.CheckAnnouncement")

	today := s.now().In(s.opts.Location)

	occasion, err := s.calendar.OccasionOn(ctx, today)
	if err != nil {
		return fmt.Errorf("Error while reading calendar: %w", err)
	}
	if occasion == nil {
		logger.Infof("No occasion on %v", today.Format("2006-01-02"))
		return nil
	}

	logger.Infof("Occasion detected: %v", occasion.Title)

	// the mutex is not released after success: it marks the day as announced
	name := fmt.Sprintf("%v:%v", constants.MutexScheduledAnnouncement, today.Format("2006-01-02"))
	mutex, err := s.mutexes.TryLock(ctx, name, 24*time.Hour)
	if err == redismutex.ErrTaken {
		logger.Infof("Announcement for %v already handled by another instance", today.Format("2006-01-02"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("Error while acquiring announcement lock: %w", err)
	}

	report, err := s.announcer.Announce(ctx, dispatch.Announcement{Title: occasion.Title, Body: occasion.Body})
	if err != nil {
		if _, uerr := mutex.Unlock(); uerr != nil {
			logger.Warnf("Error releasing announcement lock: %v", uerr)
		}
		return err
	}

	logger.Infof("Occasion announcement sent: %v successful, %v failed", report.Success, report.Failure)
	return nil
}

//Sweep Runs the duplicate registration sweep unless another instance is running it.
func (s *Scheduler) Sweep(ctx context.Context) (*registry.SweepReport, error) {
	logger := logging.FromContext(ctx).Named("scheduler.Sweep")

	mutex, err := s.mutexes.TryLock(ctx, constants.MutexDuplicateSweep, time.Hour)
	if err == redismutex.ErrTaken {
		logger.Info("Duplicate sweep already running elsewhere")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			logger.Warnf("Error releasing sweep lock: %v", err)
		}
	}()

	report, err := s.sweeper.CleanDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
