// Package realtimedb provides change feeds of Firebase Realtime Database values.
package realtimedb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/sta1300/notifier-backend/internal/changefeed"
	"github.com/sta1300/notifier-backend/internal/logging"
)

//Getter Reads the value at a path.
type Getter interface {
	Get(ctx context.Context, path string) (interface{}, error)
}

//Client Realtime DB reads through the Admin SDK.
type Client struct {
	db *db.Client
}

//NewClient -_-
func NewClient(client *db.Client) *Client {
	return &Client{db: client}
}

//Get -_-
func (c *Client) Get(ctx context.Context, path string) (interface{}, error) {
	var v interface{}
	if err := c.db.NewRef(path).Get(ctx, &v); err != nil {
		return nil, err
	}
	return v, nil
}

//PollingFeed Emits the value at a path whenever a periodic read sees it change.
type PollingFeed struct {
	getter   Getter
	interval time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

//NewPollingFeed -_-
func NewPollingFeed(getter Getter, interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollingFeed{getter: getter, interval: interval, cancels: map[string]context.CancelFunc{}}
}

//Subscribe -_-
func (f *PollingFeed) Subscribe(ctx context.Context, path string) (<-chan changefeed.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cancels[path]; ok {
		return nil, fmt.Errorf("already subscribed to %v", path)
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancels[path] = cancel

	events := make(chan changefeed.Event)
	go f.poll(ctx, path, events)
	return events, nil
}

//Unsubscribe -_-
func (f *PollingFeed) Unsubscribe(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cancel, ok := f.cancels[path]
	if !ok {
		return fmt.Errorf("not subscribed to %v", path)
	}
	cancel()
	delete(f.cancels, path)
	return nil
}

func (f *PollingFeed) poll(ctx context.Context, path string, events chan<- changefeed.Event) {
	logger := logging.FromContext(ctx).Named("realtimedb.PollingFeed")
	defer close(events)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var last interface{}
	first := true

	for {
		value, err := f.getter.Get(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("Error reading %v: %v", path, err)
		} else if first || !changefeed.Equal(value, last) {
			first = false
			last = value

			select {
			case events <- changefeed.Event{Value: value, Absent: value == nil}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
