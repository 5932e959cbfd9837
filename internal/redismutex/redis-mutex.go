package redismutex

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisclient "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/sta1300/notifier-backend/internal/logging"
)

//ErrTaken The mutex is held by someone else.
var ErrTaken = fmt.Errorf("mutex is already taken")

//Mutex Acquired mutex.
type Mutex interface {
	Unlock() (bool, error)
}

//MutexManager Cluster wide mutexes.
type MutexManager interface {
	// TryLock acquires the mutex for at most expiry or fails with ErrTaken without waiting.
	TryLock(ctx context.Context, name string, expiry time.Duration) (Mutex, error)
}

//ClientImpl Real Redis mutex client
type ClientImpl struct {
	rs *redsync.Redsync
}

//NewClient Mutexes in given Redis database.
func NewClient(client *redisclient.Client) *ClientImpl {
	return &ClientImpl{rs: redsync.New(goredis.NewPool(client))}
}

//TryLock -_-
func (r *ClientImpl) TryLock(ctx context.Context, name string, expiry time.Duration) (Mutex, error) {
	logger := logging.FromContext(ctx).Named("redis-mutex.TryLock")

	mutex := r.rs.NewMutex(name, redsync.WithExpiry(expiry), redsync.WithTries(1))

	logger.Debugf("Trying to acquire '%v' exclusive lock", name)

	if err := mutex.Lock(); err != nil {
		if err == redsync.ErrFailed {
			return nil, ErrTaken
		}
		return nil, err
	}

	return mutex, nil
}

//LocalManager Process local mutexes, for running without Redis.
type LocalManager struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

//NewLocalManager -_-
func NewLocalManager() *LocalManager {
	return &LocalManager{held: map[string]time.Time{}, now: time.Now}
}

//TryLock -_-
func (l *LocalManager) TryLock(_ context.Context, name string, expiry time.Duration) (Mutex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, ErrTaken
	}

	until := now.Add(expiry)
	l.held[name] = until
	return &localMutex{manager: l, name: name, until: until}, nil
}

type localMutex struct {
	manager *LocalManager
	name    string
	until   time.Time
}

func (m *localMutex) Unlock() (bool, error) {
	m.manager.mu.Lock()
	defer m.manager.mu.Unlock()

	if until, ok := m.manager.held[m.name]; ok && until.Equal(m.until) {
		delete(m.manager.held, m.name)
		return true, nil
	}
	return false, nil
}
