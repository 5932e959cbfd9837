package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
	err      error
	panics   bool
}

func (r *recordingProcessor) Process(_ context.Context, payload map[string]interface{}) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
	if r.panics {
		panic("processor exploded")
	}
	return r.err
}

func (r *recordingProcessor) codes() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []interface{}
	for _, p := range r.payloads {
		codes = append(codes, p["Stability"].(map[string]interface{})["Errors"].(map[string]interface{})["EVT"])
	}
	return codes
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func newTestObserver(p Processor) (*Observer, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	o := NewObserver(p, Options{DebounceWindow: 10 * time.Second, HandlerTimeout: time.Second})
	o.now = c.now
	return o, c
}

type chanFeed struct {
	events       chan Event
	unsubscribed chan string
}

func newChanFeed() *chanFeed {
	return &chanFeed{events: make(chan Event), unsubscribed: make(chan string, 1)}
}

func (f *chanFeed) Subscribe(_ context.Context, _ string) (<-chan Event, error) {
	return f.events, nil
}

func (f *chanFeed) Unsubscribe(path string) error {
	f.unsubscribed <- path
	return nil
}

func TestObserveForwardedPayload(t *testing.T) {
	p := &recordingProcessor{}
	o, _ := newTestObserver(p)

	assert.True(t, o.Observe(context.Background(), Event{Value: float64(400)}))

	require.Len(t, p.payloads, 1)
	assert.Equal(t, map[string]interface{}{
		"Stability": map[string]interface{}{
			"Errors": map[string]interface{}{"EVT": float64(400)},
		},
		"timestamp": "2024-05-01T08:00:00.000Z",
		"source":    "RTDB_LISTENER",
	}, p.payloads[0])
}

func TestObserveAdmission(t *testing.T) {
	p := &recordingProcessor{}
	o, c := newTestObserver(p)
	ctx := context.Background()

	assert.False(t, o.Observe(ctx, Event{Absent: true}), "absent before anything")
	assert.True(t, o.Observe(ctx, Event{Value: float64(400)}))
	assert.False(t, o.Observe(ctx, Event{Value: float64(400)}), "unchanged")

	c.t = c.t.Add(3 * time.Second)
	assert.False(t, o.Observe(ctx, Event{Value: float64(401)}), "debounced")

	c.t = c.t.Add(8 * time.Second)
	assert.False(t, o.Observe(ctx, Event{Value: json.Number("400")}), "equal to the last forwarded value")
	assert.True(t, o.Observe(ctx, Event{Value: float64(401)}))
	assert.False(t, o.Observe(ctx, Event{Absent: true}))

	assert.Equal(t, []interface{}{float64(400), float64(401)}, p.codes())
}

func TestObserversDoNotShareState(t *testing.T) {
	p := &recordingProcessor{}
	a, _ := newTestObserver(p)
	b, _ := newTestObserver(p)

	assert.True(t, a.Observe(context.Background(), Event{Value: float64(400)}))
	assert.True(t, b.Observe(context.Background(), Event{Value: float64(400)}))
}

func TestProcessorFailuresAreContained(t *testing.T) {
	p := &recordingProcessor{err: fmt.Errorf("boom")}
	o, c := newTestObserver(p)

	assert.True(t, o.Observe(context.Background(), Event{Value: float64(400)}))

	p.panics = true
	c.t = c.t.Add(time.Minute)
	assert.NotPanics(t, func() {
		o.Observe(context.Background(), Event{Value: float64(500)})
	})
	assert.Len(t, p.codes(), 2)
}

func TestRun(t *testing.T) {
	p := &recordingProcessor{}
	o, _ := newTestObserver(p)
	feed := newChanFeed()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx, feed, "Stability/Errors/EVT")
	}()

	feed.events <- Event{Value: float64(400)}
	feed.events <- Event{Value: float64(400)}
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "Stability/Errors/EVT", <-feed.unsubscribed)
	assert.Equal(t, []interface{}{float64(400)}, p.codes())
}

func TestRunEndsWhenFeedCloses(t *testing.T) {
	o, _ := newTestObserver(&recordingProcessor{})
	feed := newChanFeed()
	close(feed.events)

	assert.NoError(t, o.Run(context.Background(), feed, "path"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(float64(400), 400))
	assert.True(t, Equal(json.Number("400"), int64(400)))
	assert.True(t, Equal("a", "a"))
	assert.False(t, Equal("400", float64(400)))
	assert.False(t, Equal(true, false))
	assert.True(t, Equal(map[string]interface{}{"a": "b"}, map[string]interface{}{"a": "b"}))
}

func TestAdmissionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// -1 stands for an absent emission
	values := gen.SliceOfN(40, gen.IntRange(-1, 3))
	gaps := gen.SliceOfN(40, gen.Int64Range(0, 15000))

	properties.Property("forwarded emissions differ from the previous one and are a debounce window apart", prop.ForAll(
		func(vs []int, gs []int64) bool {
			p := &recordingProcessor{}
			o, c := newTestObserver(p)

			var forwardedAt []time.Time
			for i, v := range vs {
				if i >= len(gs) {
					break
				}
				c.t = c.t.Add(time.Duration(gs[i]) * time.Millisecond)
				ev := Event{Value: float64(v)}
				if v < 0 {
					ev = Event{Absent: true}
				}
				if o.Observe(context.Background(), ev) {
					forwardedAt = append(forwardedAt, c.t)
				}
			}

			codes := p.codes()
			for i := 1; i < len(codes); i++ {
				if codes[i] == codes[i-1] {
					return false
				}
				if forwardedAt[i].Sub(forwardedAt[i-1]) < 10*time.Second {
					return false
				}
			}
			for _, code := range codes {
				if code.(float64) < 0 {
					return false
				}
			}
			return true
		},
		values, gaps,
	))

	properties.Property("a changed value after a quiet window is always forwarded", prop.ForAll(
		func(a, b int) bool {
			if a == b {
				return true
			}
			o, c := newTestObserver(&recordingProcessor{})
			first := o.Observe(context.Background(), Event{Value: float64(a)})
			c.t = c.t.Add(10 * time.Second)
			return first && o.Observe(context.Background(), Event{Value: float64(b)})
		},
		gen.IntRange(0, 1000), gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
