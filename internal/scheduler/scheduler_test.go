package scheduler

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/redismutex"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAnnouncer struct {
	announcements []dispatch.Announcement
	err           error
}

func (r *recordingAnnouncer) Announce(_ context.Context, a dispatch.Announcement) (dispatch.Report, error) {
	r.announcements = append(r.announcements, a)
	if r.err != nil {
		return dispatch.Report{}, r.err
	}
	return dispatch.Report{Kind: dispatch.KindAnnouncement, Attempted: 1, Success: 1}, nil
}

type countingSweeper struct {
	runs int
}

func (c *countingSweeper) CleanDuplicates(_ context.Context) (registry.SweepReport, error) {
	c.runs++
	return registry.SweepReport{Total: 3, Duplicates: 1, Deleted: 1}, nil
}

func newTestScheduler(t *testing.T, announcer Announcer, mutexes redismutex.MutexManager, now time.Time) *Scheduler {
	calendar, err := NewFixedCalendar(
		Occasion{Date: "12-25", Title: "Merry Christmas", Body: "Yearly"},
		Occasion{Date: "2025-03-01", Title: "Ramadan Kareem", Body: "Dated"},
	)
	require.NoError(t, err)

	s := New(calendar, announcer, &countingSweeper{}, mutexes, Options{AnnouncementHour: 12})
	s.now = func() time.Time { return now }
	return s
}

func TestFixedCalendar(t *testing.T) {
	calendar, err := NewFixedCalendar(
		Occasion{Date: "03-01", Title: "Yearly", Body: "b"},
		Occasion{Date: "2025-03-01", Title: "Dated", Body: "b"},
		Occasion{Date: "02-29", Title: "Leap", Body: "b"},
	)
	require.NoError(t, err)
	ctx := context.Background()

	o, err := calendar.OccasionOn(ctx, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Dated", o.Title)

	o, _ = calendar.OccasionOn(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "Yearly", o.Title)

	o, _ = calendar.OccasionOn(ctx, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "Leap", o.Title)

	o, _ = calendar.OccasionOn(ctx, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	assert.Nil(t, o)
}

func TestInvalidCalendar(t *testing.T) {
	_, err := NewFixedCalendar(Occasion{Date: "13-01", Title: "t", Body: "b"})
	assert.Error(t, err)

	_, err = NewFixedCalendar(Occasion{Date: "01-01", Title: "t"})
	assert.Error(t, err)
}

func TestLoadFixedCalendar(t *testing.T) {
	dir, err := ioutil.TempDir("", "calendar")
	require.NoError(t, err)
	path := filepath.Join(dir, "calendar.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`[{"date":"12-25","title":"Merry Christmas","body":"Ho ho"}]`), 0600))

	calendar, err := LoadFixedCalendar(path)
	require.NoError(t, err)

	o, err := calendar.OccasionOn(context.Background(), time.Date(2030, 12, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Ho ho", o.Body)

	_, err = LoadFixedCalendar(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestNextAnnouncement(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)

	tables := []struct {
		now  time.Time
		loc  *time.Location
		next time.Time
	}{
		{time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), time.UTC, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.UTC, time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 13, 0, 0, 0, time.UTC), time.UTC, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), prague, time.Date(2024, 5, 2, 12, 0, 0, 0, prague)},
	}

	for _, table := range tables {
		assert.True(t, table.next.Equal(NextAnnouncement(table.now, 12, table.loc)), table.now.String())
	}
}

func TestCheckAnnouncement(t *testing.T) {
	announcer := &recordingAnnouncer{}
	mutexes := redismutex.NewLocalManager()
	s := newTestScheduler(t, announcer, mutexes, time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.CheckAnnouncement(context.Background()))
	require.NoError(t, s.CheckAnnouncement(context.Background()))

	assert.Equal(t, []dispatch.Announcement{{Title: "Merry Christmas", Body: "Yearly"}}, announcer.announcements,
		"second check on the same day is a no-op")
}

func TestCheckAnnouncementWithoutOccasion(t *testing.T) {
	announcer := &recordingAnnouncer{}
	s := newTestScheduler(t, announcer, redismutex.NewLocalManager(), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.CheckAnnouncement(context.Background()))
	assert.Empty(t, announcer.announcements)
}

func TestFailedAnnouncementCanBeRetried(t *testing.T) {
	announcer := &recordingAnnouncer{err: fmt.Errorf("gateway down")}
	s := newTestScheduler(t, announcer, redismutex.NewLocalManager(), time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	assert.Error(t, s.CheckAnnouncement(context.Background()))

	announcer.err = nil
	require.NoError(t, s.CheckAnnouncement(context.Background()))
	assert.Len(t, announcer.announcements, 2)
	assert.Equal(t, "Ramadan Kareem", announcer.announcements[1].Title)
}

func TestSweep(t *testing.T) {
	mutexes := redismutex.NewLocalManager()
	s := newTestScheduler(t, &recordingAnnouncer{}, mutexes, time.Now())

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	held, err := mutexes.TryLock(context.Background(), "duplicate-token-sweep", time.Hour)
	require.NoError(t, err, "sweep releases its lock")

	report, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	_, _ = held.Unlock()

	assert.Equal(t, 1, s.sweeper.(*countingSweeper).runs)
}

func TestRunChecksOnStartup(t *testing.T) {
	announcer := &recordingAnnouncer{}
	s := newTestScheduler(t, announcer, redismutex.NewLocalManager(), time.Date(2024, 12, 25, 9, 0, 0, 0, time.UTC))
	s.opts.CheckOnStartup = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	assert.Len(t, announcer.announcements, 1)
}
