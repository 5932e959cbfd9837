package cooldown

import (
	"bytes"
	"context"
	"encoding/json"
	ers "errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	redisclient "github.com/go-redis/redis/v8"
	"github.com/sta1300/notifier-backend/internal/logging"
)

const redisLockKey = "system_locks:notification_lock"

//RedisLockStore Lock kept in Redis, updated in a WATCH/MULTI optimistic transaction.
type RedisLockStore struct {
	client   *redisclient.Client
	key      string
	attempts uint
}

//NewRedisLockStore -_-
func NewRedisLockStore(client *redisclient.Client) *RedisLockStore {
	return &RedisLockStore{client: client, key: redisLockKey, attempts: 10}
}

//Transact -_-
func (r *RedisLockStore) Transact(ctx context.Context, decide DecideFunc) (bool, error) {
	logger := logging.FromContext(ctx).Named("cooldown.RedisLockStore")

	var allowed bool

	txf := func(tx *redisclient.Tx) error {
		var current *Lock

		raw, err := tx.Get(ctx, r.key).Bytes()
		switch {
		case err == redisclient.Nil:
			// first alert ever
		case err != nil:
			return fmt.Errorf("Error while querying Redis: %w", err)
		default:
			var fields map[string]interface{}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&fields); err == nil {
				current = decodeLock(fields)
			}
			if current == nil {
				logger.Warnf("Notification lock is unreadable, it will be replaced: %s", raw)
			}
		}

		next, allow := decide(current)
		allowed = allow

		if next == nil {
			return nil
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redisclient.Pipeliner) error {
			pipe.Set(ctx, r.key, payload, 0)
			return nil
		})
		return err
	}

	err := retry.Do(
		func() error {
			return r.client.Watch(ctx, txf, r.key)
		},
		retry.Attempts(r.attempts),
		retry.Delay(10*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return ers.Is(err, redisclient.TxFailedErr) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Debugf("Notification lock changed concurrently, retry #%v", n+1)
		}),
	)

	if err != nil {
		return false, err
	}

	return allowed, nil
}
