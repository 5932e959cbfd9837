// Package changefeed observes a single value of a realtime change feed and forwards changed values to the
// status processor, dropping repeats and bursts.
package changefeed

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/metrics"
	"github.com/sta1300/notifier-backend/internal/utils"
)

//Event One emission of a feed. Absent is set when the value was deleted or never set.
type Event struct {
	Value  interface{}
	Absent bool
}

//Feed Source of emissions for a path.
type Feed interface {
	// Subscribe starts delivering emissions of path. The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, path string) (<-chan Event, error)
	Unsubscribe(path string) error
}

//Processor Consumer of forwarded status payloads.
type Processor interface {
	Process(ctx context.Context, payload map[string]interface{}) error
}

//Options -_-
type Options struct {
	DebounceWindow time.Duration
	HandlerTimeout time.Duration
}

//Observer Admission state of one observed value. Observers never share state.
type Observer struct {
	processor Processor
	window    time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu              sync.Mutex
	hasValue        bool
	lastValue       interface{}
	lastProcessedAt time.Time
}

//NewObserver -_-
func NewObserver(processor Processor, opts Options) *Observer {
	timeout := opts.HandlerTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Observer{
		processor: processor,
		window:    opts.DebounceWindow,
		timeout:   timeout,
		now:       utils.GetTimeNow,
	}
}

//Run Consumes the feed until ctx ends or the feed closes the subscription.
func (o *Observer) Run(ctx context.Context, feed Feed, path string) error {
	logger := logging.FromContext(ctx).Named("changefeed.Run")

	events, err := feed.Subscribe(ctx, path)
	if err != nil {
		return fmt.Errorf("Error subscribing to %v: %w", path, err)
	}

	logger.Infof("Listening for changes at %v", path)

	for {
		select {
		case <-ctx.Done():
			if err := feed.Unsubscribe(path); err != nil {
				logger.Warnf("Error unsubscribing from %v: %v", path, err)
			}
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				logger.Warnf("Feed of %v closed", path)
				return nil
			}
			o.Observe(ctx, ev)
		}
	}
}

//Observe Applies admission rules to one emission and forwards it when admitted. Returns whether it was
//forwarded.
func (o *Observer) Observe(ctx context.Context, ev Event) bool {
	logger := logging.FromContext(ctx).Named("changefeed.Observe")

	payload, outcome := o.admit(ev)
	metrics.FeedEmissions.WithLabelValues(outcome).Inc()

	if payload == nil {
		logger.Debugf("Emission %v ignored: %v", utils.Describe(ev.Value), outcome)
		return false
	}

	logger.Infof("Error code changed to %v, processing", utils.Describe(ev.Value))
	o.handle(ctx, payload)
	return true
}

func (o *Observer) admit(ev Event) (map[string]interface{}, string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev.Absent || ev.Value == nil {
		return nil, "absent"
	}

	if o.hasValue && Equal(ev.Value, o.lastValue) {
		return nil, "unchanged"
	}

	now := o.now()
	if o.hasValue && now.Sub(o.lastProcessedAt) < o.window {
		return nil, "debounced"
	}

	o.hasValue = true
	o.lastValue = ev.Value
	o.lastProcessedAt = now

	return map[string]interface{}{
		"Stability": map[string]interface{}{
			"Errors": map[string]interface{}{
				"EVT": ev.Value,
			},
		},
		"timestamp": utils.ISOTimestamp(now),
		"source":    constants.FeedSourceRealtimeDB,
	}, "forwarded"
}

func (o *Observer) handle(ctx context.Context, payload map[string]interface{}) {
	logger := logging.FromContext(ctx).Named("changefeed.handle")

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic while processing change: %v", r)
		}
	}()

	if err := o.processor.Process(ctx, payload); err != nil {
		logger.Errorf("Error processing change: %+v", err)
	}
}

//Equal Value equality of decoded feed values; numbers compare by value regardless of their Go type.
func Equal(a, b interface{}) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
