package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/logging"
)

//Config Configuration of the notifier backend.
type Config struct {
	Port     string `env:"PORT,default=3000"`
	LogLevel string `env:"LOG_LEVEL,default=debug"`

	Firebase FirebaseConfig
	Feed     FeedConfig
	Alerts   AlertConfig
	Dispatch DispatchConfig
	Redis    RedisConfig
	Archive  ArchiveConfig
	Schedule ScheduleConfig

	ProjectID          string `env:"PROJECT_ID,default=NOOP"`
	AlertTopic         string `env:"ALERT_TOPIC,default=device-error-alerted"`
	AnnouncementAPIKey string `env:"ANNOUNCEMENT_API_KEY"`
}

//FirebaseConfig Firebase credentials and database location.
type FirebaseConfig struct {
	// DatabaseURL set to NOOP selects the no-op store and gateway.
	DatabaseURL     string `env:"FIREBASE_DATABASE_URL,default=https://stability-7b1c7-default-rtdb.europe-west1.firebasedatabase.app"`
	ProjectID       string `env:"FIREBASE_PROJECT_ID"`
	CredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	CredentialsJSON string `env:"FIREBASE_SERVICE_ACCOUNT"`
}

//FeedConfig Realtime DB change feed.
type FeedConfig struct {
	Path           string        `env:"FEED_PATH,default=Stability/Errors/EVT"`
	Mode           string        `env:"FEED_MODE,default=stream"`
	PollInterval   time.Duration `env:"FEED_POLL_INTERVAL,default=1s"`
	DebounceWindow time.Duration `env:"FEED_DEBOUNCE_WINDOW,default=10s"`
	HandlerTimeout time.Duration `env:"FEED_HANDLER_TIMEOUT,default=45s"`
}

//AlertConfig Cooldown lock.
type AlertConfig struct {
	Cooldown      time.Duration `env:"ALERT_COOLDOWN,default=10s"`
	FailurePolicy string        `env:"ALERT_FAILURE_POLICY,default=open"`
	LockBackend   string        `env:"ALERT_LOCK_BACKEND,default=firestore"`
}

//DispatchConfig Fan-out.
type DispatchConfig struct {
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT,default=30s"`
	TokenMinLength int           `env:"TOKEN_MIN_LENGTH,default=100"`
	TokenSeparator string        `env:"TOKEN_SEPARATOR,default=:"`
}

//RedisConfig Redis used for the cooldown lock backend and distributed mutexes. Empty address disables it.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	MutexDB  int    `env:"REDIS_MUTEX_DB,default=1"`
}

//ArchiveConfig Raw status record sink.
type ArchiveConfig struct {
	Backend             string `env:"STATUS_ARCHIVE,default=firestore"`
	PostgresURL         string `env:"STATUS_ARCHIVE_POSTGRES_URL"`
	CloudSQLInstance    string `env:"STATUS_ARCHIVE_CLOUDSQL_INSTANCE"`
	PostgresCreateTable bool   `env:"STATUS_ARCHIVE_CREATE_TABLE,default=true"`
}

//ScheduleConfig Scheduled announcements and maintenance.
type ScheduleConfig struct {
	CalendarFile     string        `env:"ANNOUNCEMENT_CALENDAR_FILE"`
	AnnouncementHour int           `env:"ANNOUNCEMENT_HOUR,default=12"`
	Location         string        `env:"ANNOUNCEMENT_TIMEZONE,default=UTC"`
	CheckOnStartup   bool          `env:"ANNOUNCEMENT_CHECK_ON_STARTUP,default=true"`
	SweepInterval    time.Duration `env:"DUPLICATE_SWEEP_INTERVAL,default=24h"`
}

//Noop Whether Firebase backends are mocked.
func (c *Config) Noop() bool {
	return c.Firebase.DatabaseURL == constants.Noop
}

//Load Loads config from environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

//LoadFrom Loads config using given lookuper, handy for tests.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	logger := logging.FromContext(ctx).Named("config.Load")

	var config Config
	if err := envconfig.ProcessWith(ctx, &config, l); err != nil {
		logger.Debugf("Could not load config: %v", err)
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Feed.Mode {
	case "stream", "poll", "off":
	default:
		return fmt.Errorf("invalid FEED_MODE %q", c.Feed.Mode)
	}

	switch c.Alerts.FailurePolicy {
	case "open", "closed":
	default:
		return fmt.Errorf("invalid ALERT_FAILURE_POLICY %q", c.Alerts.FailurePolicy)
	}

	switch c.Alerts.LockBackend {
	case "firestore", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("ALERT_LOCK_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("invalid ALERT_LOCK_BACKEND %q", c.Alerts.LockBackend)
	}

	switch c.Archive.Backend {
	case "firestore":
	case "postgres":
		if c.Archive.PostgresURL == "" {
			return fmt.Errorf("STATUS_ARCHIVE=postgres requires STATUS_ARCHIVE_POSTGRES_URL")
		}
	default:
		return fmt.Errorf("invalid STATUS_ARCHIVE %q", c.Archive.Backend)
	}

	if c.Schedule.AnnouncementHour < 0 || c.Schedule.AnnouncementHour > 23 {
		return fmt.Errorf("ANNOUNCEMENT_HOUR must be within 0-23")
	}

	if c.Dispatch.TokenMinLength < 0 {
		return fmt.Errorf("TOKEN_MIN_LENGTH must not be negative")
	}

	return nil
}
