package messaging

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/errorutils"
	fbmessaging "firebase.google.com/go/v4/messaging"
	"github.com/sta1300/notifier-backend/internal/logging"
)

//MaxBatchSize The most messages FCM accepts in one SendEach call.
const MaxBatchSize = 500

//ErrorKind Classification of a per-message delivery failure.
type ErrorKind string

const (
	//KindNone Delivered.
	KindNone ErrorKind = ""
	//KindUnregistered The token is no longer registered with FCM.
	KindUnregistered ErrorKind = "registration-token-not-registered"
	//KindInvalidArgument FCM rejected the request for this token. Malformed registration tokens are
	//reported with this code too.
	KindInvalidArgument ErrorKind = "invalid-argument"
	//KindTransient Quota, availability or internal errors; retrying later may succeed.
	KindTransient ErrorKind = "transient"
	//KindUnknown Anything else.
	KindUnknown ErrorKind = "unknown"
)

//Permanent Whether a token failing with this kind should be removed from the registry.
func (k ErrorKind) Permanent() bool {
	return k == KindUnregistered || k == KindInvalidArgument
}

//SendResult Outcome for one message, at the same index as the message it belongs to.
type SendResult struct {
	Success   bool
	MessageID string
	Kind      ErrorKind
	Err       error
}

//PushSender Interface for FB messaging client
type PushSender interface {
	//SendBatch Sends every message and returns one result per message. The error is set only when the
	//batch as a whole could not be submitted.
	SendBatch(ctx context.Context, msgs []*fbmessaging.Message) ([]SendResult, error)
}

//Client Real implementation of FB messaging client
type Client struct {
	messaging *fbmessaging.Client
}

//NewClient -_-
func NewClient(m *fbmessaging.Client) *Client {
	return &Client{messaging: m}
}

//SendBatch Sends the messages in chunks of MaxBatchSize.
func (c *Client) SendBatch(ctx context.Context, msgs []*fbmessaging.Message) ([]SendResult, error) {
	logger := logging.FromContext(ctx).Named("messaging.SendBatch")

	results := make([]SendResult, 0, len(msgs))

	for start := 0; start < len(msgs); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		response, err := c.messaging.SendEach(ctx, msgs[start:end])
		if err != nil {
			return nil, fmt.Errorf("error sending batch of %d messages: %w", end-start, err)
		}

		logger.Debugf("Batch sent: %d success, %d failures", response.SuccessCount, response.FailureCount)

		for _, r := range response.Responses {
			results = append(results, toResult(r))
		}
	}

	return results, nil
}

func toResult(r *fbmessaging.SendResponse) SendResult {
	if r.Success {
		return SendResult{Success: true, MessageID: r.MessageID}
	}
	return SendResult{Kind: Classify(r.Error), Err: r.Error}
}

//Classify Maps a per-message FCM error to an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case fbmessaging.IsUnregistered(err):
		return KindUnregistered
	case errorutils.IsInvalidArgument(err):
		return KindInvalidArgument
	case fbmessaging.IsQuotaExceeded(err), errorutils.IsUnavailable(err), errorutils.IsInternal(err), errorutils.IsDeadlineExceeded(err):
		return KindTransient
	default:
		return KindUnknown
	}
}

//MockClient NOOP messaging client; every message is delivered.
type MockClient struct{}

//SendBatch -_-
func (c MockClient) SendBatch(ctx context.Context, msgs []*fbmessaging.Message) ([]SendResult, error) {
	logger := logging.FromContext(ctx).Named("messaging.MockClient")

	results := make([]SendResult, len(msgs))
	for i := range msgs {
		results[i] = SendResult{Success: true, MessageID: fmt.Sprintf("noop-%d", i)}
	}

	logger.Debugf("Mocking delivery of %d messages", len(msgs))
	return results, nil
}
