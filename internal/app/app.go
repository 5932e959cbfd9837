// Package app wires the notifier components from configuration. NOOP configuration selects in-memory
// backends so the server runs without any cloud dependency.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sta1300/notifier-backend/internal/changefeed"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/cooldown"
	"github.com/sta1300/notifier-backend/internal/devicestatus"
	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/firebase"
	"github.com/sta1300/notifier-backend/internal/functions/announcement"
	devicestatushandler "github.com/sta1300/notifier-backend/internal/functions/devicestatus"
	"github.com/sta1300/notifier-backend/internal/functions/registertoken"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/messaging"
	"github.com/sta1300/notifier-backend/internal/pubsub"
	"github.com/sta1300/notifier-backend/internal/realtimedb"
	"github.com/sta1300/notifier-backend/internal/redis"
	"github.com/sta1300/notifier-backend/internal/redismutex"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/scheduler"
	"github.com/sta1300/notifier-backend/internal/statusarchive"
	"github.com/sta1300/notifier-backend/internal/store"
	httputils "github.com/sta1300/notifier-backend/internal/utils/http"
	"github.com/sta1300/notifier-backend/pkg/httpserver"
	"golang.org/x/oauth2"
)

//App The wired notifier.
type App struct {
	Config     *config.Config
	Registry   *registry.Service
	Dispatcher *dispatch.Dispatcher
	Processor  *devicestatus.Processor
	Scheduler  *scheduler.Scheduler
	Observer   *changefeed.Observer
	// Feed is nil when the change feed is off.
	Feed changefeed.Feed

	closers []func() error
}

type backends struct {
	repo      registry.Repository
	gateway   messaging.PushSender
	publisher pubsub.EventPublisher
	locks     cooldown.LockStore
	archive   statusarchive.Archive
	mutexes   redismutex.MutexManager
	feed      changefeed.Feed
}

//New Connects to the configured backends and builds all components.
func New(ctx context.Context, conf *config.Config) (*App, error) {
	logger := logging.FromContext(ctx).Named("app.New")

	a := &App{Config: conf}

	var b *backends
	var err error
	if conf.Noop() {
		logger.Warn("Firebase is mocked, running with in-memory backends")
		b = noopBackends()
	} else if b, err = a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if b.publisher == nil {
		if b.publisher, err = a.publisher(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Registry = registry.NewService(b.repo)
	a.Dispatcher = dispatch.NewDispatcher(dispatch.Config{
		Registry:  b.repo,
		Gateway:   b.gateway,
		Publisher: b.publisher,
		Topic:     conf.AlertTopic,
		Policy: dispatch.TokenPolicy{
			MinLength: conf.Dispatch.TokenMinLength,
			Separator: conf.Dispatch.TokenSeparator,
		},
		GatewayTimeout: conf.Dispatch.GatewayTimeout,
	})

	limiter := cooldown.NewLimiter(b.locks, conf.Alerts.Cooldown, cooldown.Policy(conf.Alerts.FailurePolicy))
	a.Processor = devicestatus.NewProcessor(limiter, a.Dispatcher, b.archive)

	a.Feed = b.feed
	a.Observer = changefeed.NewObserver(a.Processor, changefeed.Options{
		DebounceWindow: conf.Feed.DebounceWindow,
		HandlerTimeout: conf.Feed.HandlerTimeout,
	})

	if a.Scheduler, err = newScheduler(conf.Schedule, a.Dispatcher, a.Registry, b.mutexes); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func noopBackends() *backends {
	return &backends{
		repo:    registry.NewMemoryRepository(),
		gateway: messaging.MockClient{},
		locks:   cooldown.NewMemoryLockStore(),
		archive: &statusarchive.MemoryArchive{},
		mutexes: redismutex.NewLocalManager(),
	}
}

func (a *App) connect(ctx context.Context) (*backends, error) {
	logger := logging.FromContext(ctx).Named("app.connect")
	conf := a.Config

	clients, err := firebase.NewClients(ctx, conf.Firebase)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, clients.Close)

	st := store.NewClient(clients.Firestore)

	b := &backends{
		repo:    registry.NewFirestoreRepository(st),
		gateway: messaging.NewClient(clients.Messaging),
		mutexes: redismutex.NewLocalManager(),
	}

	if conf.Redis.Addr != "" {
		mutexClient, err := redis.Connect(ctx, conf.Redis, conf.Redis.MutexDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mutexClient.Close)
		b.mutexes = redismutex.NewClient(mutexClient)
	}

	switch conf.Alerts.LockBackend {
	case "redis":
		client, err := redis.Connect(ctx, conf.Redis, conf.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		b.locks = cooldown.NewRedisLockStore(client)
	case "memory":
		logger.Warn("Notification lock kept in memory, cooldown is not shared between instances")
		b.locks = cooldown.NewMemoryLockStore()
	default:
		b.locks = cooldown.NewFirestoreLockStore(st)
	}

	switch conf.Archive.Backend {
	case "postgres":
		archive, err := statusarchive.NewPostgresArchive(ctx, statusarchive.PostgresOptions{
			URL:              conf.Archive.PostgresURL,
			CloudSQLInstance: conf.Archive.CloudSQLInstance,
			CreateTable:      conf.Archive.PostgresCreateTable,
		})
		if err != nil {
			return nil, fmt.Errorf("Error connecting status archive: %w", err)
		}
		a.closers = append(a.closers, archive.Close)
		b.archive = archive
	default:
		b.archive = statusarchive.NewFirestoreArchive(st)
	}

	switch conf.Feed.Mode {
	case "stream":
		ts, err := firebase.TokenSource(ctx, conf.Firebase, firebase.DatabaseScopes...)
		if err != nil {
			return nil, fmt.Errorf("Error obtaining Realtime DB credentials: %w", err)
		}
		authorized := oauth2.NewClient(context.Background(), ts)
		client := httputils.NewRetryingClient(authorized, 5, logging.FromContext(ctx).Named("realtimedb.http").Debugf)
		b.feed = realtimedb.NewStreamingFeed(conf.Firebase.DatabaseURL, client)
	case "poll":
		b.feed = realtimedb.NewPollingFeed(realtimedb.NewClient(clients.Database), conf.Feed.PollInterval)
	}

	return b, nil
}

func (a *App) publisher(ctx context.Context) (pubsub.EventPublisher, error) {
	if a.Config.ProjectID == constants.Noop {
		logging.FromContext(ctx).Named("app.publisher").Debug("Mocking PubSub")
		return pubsub.MockClient{}, nil
	}

	client, err := pubsub.NewClient(ctx, a.Config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func newScheduler(conf config.ScheduleConfig, announcer scheduler.Announcer, sweeper scheduler.Sweeper, mutexes redismutex.MutexManager) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(conf.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid ANNOUNCEMENT_TIMEZONE: %w", err)
	}

	var calendar scheduler.Calendar
	if conf.CalendarFile != "" {
		fixed, err := scheduler.LoadFixedCalendar(conf.CalendarFile)
		if err != nil {
			return nil, err
		}
		calendar = fixed
	}

	return scheduler.New(calendar, announcer, sweeper, mutexes, scheduler.Options{
		AnnouncementHour: conf.AnnouncementHour,
		Location:         loc,
		CheckOnStartup:   conf.CheckOnStartup,
		SweepInterval:    conf.SweepInterval,
	}), nil
}

//Routes HTTP handlers of the API.
func (a *App) Routes() httpserver.Routes {
	return httpserver.Routes{
		RegisterToken: registertoken.NewHandler(a.Registry),
		DeviceStatus:  devicestatushandler.NewHandler(a.Processor),
		Announcement:  announcement.NewHandler(a.Dispatcher, a.Config.AnnouncementAPIKey),
	}
}

//Handler The complete HTTP handler.
func (a *App) Handler(ctx context.Context) http.Handler {
	return httpserver.NewHandler(ctx, a.Routes())
}

//RunBackground Starts the change feed observer and the scheduler. They stop with ctx.
func (a *App) RunBackground(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("app.RunBackground")

	if a.Feed != nil {
		go func() {
			if err := a.Observer.Run(ctx, a.Feed, a.Config.Feed.Path); err != nil && ctx.Err() == nil {
				logger.Errorf("Change feed observer stopped: %+v", err)
			}
		}()
	} else {
		logger.Info("Change feed is off")
	}

	go a.Scheduler.Run(ctx)
}

//Close Releases backend connections.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
