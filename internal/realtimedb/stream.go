package realtimedb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sta1300/notifier-backend/internal/changefeed"
	"github.com/sta1300/notifier-backend/internal/logging"
)

const (
	reconnectWaitMin = time.Second
	reconnectWaitMax = time.Minute
)

//StreamingFeed Subscribes to the Realtime Database REST streaming API (server-sent events).
type StreamingFeed struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

//NewStreamingFeed The client must authorize requests (see firebase.TokenSource) and must not time out
//requests, streams stay open indefinitely.
func NewStreamingFeed(databaseURL string, client *http.Client) *StreamingFeed {
	return &StreamingFeed{
		baseURL: strings.TrimSuffix(databaseURL, "/"),
		client:  client,
		cancels: map[string]context.CancelFunc{},
	}
}

//Subscribe -_-
func (f *StreamingFeed) Subscribe(ctx context.Context, path string) (<-chan changefeed.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cancels[path]; ok {
		return nil, fmt.Errorf("already subscribed to %v", path)
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancels[path] = cancel

	events := make(chan changefeed.Event)
	go f.listen(ctx, path, events)
	return events, nil
}

//Unsubscribe -_-
func (f *StreamingFeed) Unsubscribe(path string) error {
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

func (f *StreamingFeed) url(path string) string {
	return fmt.Sprintf("%v/%v.json", f.baseURL, strings.Trim(path, "/"))
}

// listen keeps one stream open, reconnecting with backoff until the subscription is cancelled.
func (f *StreamingFeed) listen(ctx context.Context, path string, events chan<- changefeed.Event) {
	logger := logging.FromContext(ctx).Named("realtimedb.StreamingFeed")
	defer close(events)

	attempt := 0
	for {
		err := f.stream(ctx, path, events, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		if err == errCancelled {
			logger.Errorf("Stream of %v cancelled by server, giving up", path)
			return
		}

		wait := retryablehttp.DefaultBackoff(reconnectWaitMin, reconnectWaitMax, attempt, nil)
		attempt++
		logger.Warnf("Stream of %v interrupted (%v), reconnecting in %v", path, err, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

var (
	errCancelled   = fmt.Errorf("stream cancelled by server")
	errAuthRevoked = fmt.Errorf("auth revoked")
)

func (f *StreamingFeed) stream(ctx context.Context, path string, events chan<- changefeed.Event, connected func()) error {
	logger := logging.FromContext(ctx).Named("realtimedb.stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %v", resp.Status)
	}

	connected()
	logger.Debugf("Stream of %v connected", path)

	var tree interface{}
	var event string
	var data bytes.Buffer

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		case line != "":
			continue
		}

		// blank line ends the event
		name, body := event, data.Bytes()
		event = ""

		changed, err := applyEvent(&tree, name, body)
		data.Reset()
		if err != nil {
			return err
		}
		if !changed {
			continue
		}

		select {
		case events <- changefeed.Event{Value: tree, Absent: tree == nil}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed")
}

type streamData struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// applyEvent updates the local copy of the subscribed value. Returns whether it changed.
func applyEvent(tree *interface{}, name string, body []byte) (bool, error) {
	switch name {
	case "put", "patch":
	case "keep-alive", "":
		return false, nil
	case "cancel":
		return false, errCancelled
	case "auth_revoked":
		return false, errAuthRevoked
	default:
		return false, nil
	}

	var msg streamData
	if err := json.Unmarshal(body, &msg); err != nil {
		return false, fmt.Errorf("malformed %v event: %w", name, err)
	}

	var value interface{}
	if len(msg.Data) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(msg.Data))
		decoder.UseNumber()
		if err := decoder.Decode(&value); err != nil {
			return false, fmt.Errorf("malformed %v data: %w", name, err)
		}
	}

	segments := splitPath(msg.Path)

	if name == "put" {
		*tree = setAt(*tree, segments, value)
		return true, nil
	}

	children, ok := value.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("patch data is not an object")
	}
	for key, child := range children {
		*tree = setAt(*tree, append(append([]string(nil), segments...), splitPath(key)...), child)
	}
	return true, nil
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// setAt returns root with value stored at the segments path. A nil value deletes.
func setAt(root interface{}, segments []string, value interface{}) interface{} {
	if len(segments) == 0 {
		return value
	}

	node, ok := root.(map[string]interface{})
	if !ok {
		node = map[string]interface{}{}
	} else {
		copied := make(map[string]interface{}, len(node))
		for k, v := range node {
			copied[k] = v
		}
		node = copied
	}

	child := setAt(node[segments[0]], segments[1:], value)
	if child == nil {
		delete(node, segments[0])
	} else {
		node[segments[0]] = child
	}

	if len(node) == 0 {
		return nil
	}
	return node
}
