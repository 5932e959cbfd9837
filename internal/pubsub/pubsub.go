package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sta1300/notifier-backend/internal/logging"
)


//EventPublisher is an abstraction over PubSub
type EventPublisher interface {
	Publish(ctx context.Context, topic string, msg interface{}) error
}

//Client Real PubSub client.
type Client struct {
	client *pubsub.Client
}

//NewClient -_-
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

//Publish Publish message to some topic.
func (c *Client) Publish(ctx context.Context, topic string, msg interface{}) error {
	var t = c.client.Topic(topic)
	defer t.Stop()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	result := t.Publish(ctx, &pubsub.Message{Data: payload})

	// The Get method blocks until a server-generated ID or
	// an error is returned for the published message.
	_, err = result.Get(ctx)
	return err
}

//Close -_-
func (c *Client) Close() error {
	return c.client.Close()
}

//MockClient NOOP PubSub client.
type MockClient struct{}

//Publish Publish message to some topic.
func (c MockClient) Publish(ctx context.Context, topic string, msg interface{}) error {
	logging.FromContext(ctx).Named("pubsub.MockClient").Debugf("Mocking publish to %v", topic)
	return nil
}

//RecordingClient Keeps published messages in memory, JSON encoded as the real client would send them.
type RecordingClient struct {
	mu        sync.Mutex
	Err       error
	Published map[string][][]byte
}

//Publish -_-
func (c *RecordingClient) Publish(_ context.Context, topic string, msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.Published == nil {
		c.Published = map[string][][]byte{}
	}
	c.Published[topic] = append(c.Published[topic], payload)
	return nil
}

//Messages Payloads published to topic so far.
func (c *RecordingClient) Messages(topic string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.Published[topic]...)
}
