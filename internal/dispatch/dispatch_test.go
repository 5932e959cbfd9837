package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sta1300/notifier-backend/internal/messaging"
	"github.com/sta1300/notifier-backend/internal/pubsub"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topic = "device-error-alerted"

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func token(name string) string {
	return name + ":APA91b" + strings.Repeat("x", 120)
}

type fixture struct {
	repo      *registry.MemoryRepository
	gateway   *messaging.ScriptedClient
	publisher *pubsub.RecordingClient
	d         *Dispatcher
}

func newFixture(regs ...registry.Registration) *fixture {
	f := &fixture{
		repo:      registry.NewMemoryRepository(regs...),
		gateway:   messaging.NewScriptedClient(),
		publisher: &pubsub.RecordingClient{},
	}
	f.d = NewDispatcher(Config{
		Registry:       f.repo,
		Gateway:        f.gateway,
		Publisher:      f.publisher,
		Topic:          topic,
		Policy:         TokenPolicy{MinLength: 100, Separator: ":"},
		GatewayTimeout: time.Second,
	})
	f.d.now = func() time.Time { return fixedNow }
	return f
}

func reg(id, tok string) registry.Registration {
	return registry.Registration{ID: id, Token: tok, DeviceID: id, Platform: "android", Active: true}
}

func sentTokens(g *messaging.ScriptedClient) []string {
	var tokens []string
	for _, m := range g.Sent() {
		tokens = append(tokens, m.Token)
	}
	return tokens
}

func TestTokenPolicy(t *testing.T) {
	p := TokenPolicy{MinLength: 100, Separator: ":"}

	assert.True(t, p.Valid(token("a")))
	assert.False(t, p.Valid("short:token"))
	assert.False(t, p.Valid(strings.Repeat("x", 150)), "missing separator")
	assert.False(t, p.Valid(strings.Repeat("x", 99)+":"), "exactly min length")
	assert.True(t, TokenPolicy{MinLength: 3}.Valid("abcd"))
}

func TestDispatchAlertReconcilesRegistry(t *testing.T) {
	t1, t2 := token("t1"), token("t2")
	f := newFixture(
		reg("r1", t1),
		reg("r2", t1),
		reg("r3", "short"),
		reg("r4", t2),
	)
	f.gateway.FailToken(t2, messaging.KindUnregistered)

	report := f.d.DispatchAlert(context.Background(), 400, "Chamber Overheat Warning")

	assert.Equal(t, []string{t1, t2}, sentTokens(f.gateway))
	assert.Equal(t, 1, f.gateway.Calls())

	assert.Equal(t, 4, report.Registered)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Success)
	assert.Equal(t, 1, report.Failure)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Invalid)
	assert.Empty(t, report.FailedTasks())

	r1, ok := f.repo.Get("r1")
	require.True(t, ok)
	require.NotNil(t, r1.LastUsed)
	assert.Equal(t, fixedNow, *r1.LastUsed)

	r2, ok := f.repo.Get("r2")
	require.True(t, ok, "duplicates are skipped, not deleted")
	assert.Nil(t, r2.LastUsed)

	_, ok = f.repo.Get("r3")
	assert.False(t, ok, "invalid format is deleted")
	_, ok = f.repo.Get("r4")
	assert.False(t, ok, "unregistered token is deleted")

	published := f.publisher.Messages(topic)
	require.Len(t, published, 1)
	var event ReportEvent
	require.NoError(t, json.Unmarshal(published[0], &event))
	assert.Equal(t, ReportEvent{
		Kind:         KindAlert,
		ErrorCode:    400,
		Attempted:    2,
		Success:      1,
		Failure:      1,
		Skipped:      1,
		Invalid:      1,
		DispatchedAt: "2024-05-01T08:00:00.000Z",
	}, event)
}

func TestDispatchAlertMessageContent(t *testing.T) {
	f := newFixture(reg("r1", token("t1")))

	f.d.DispatchAlert(context.Background(), 400, "Chamber Overheat Warning")

	sent := f.gateway.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, AlertTitle, msg.Notification.Title)
	assert.Equal(t, "Error 400: Chamber Overheat Warning", msg.Notification.Body)
	assert.Equal(t, map[string]string{
		"errorCode":    "400",
		"errorMessage": "Chamber Overheat Warning",
		"type":         "error",
		"priority":     "high",
		"timestamp":    "2024-05-01T08:00:00.000Z",
	}, msg.Data)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, time.Hour, *msg.Android.TTL)
	assert.Equal(t, "high_importance_channel_new", msg.Android.Notification.ChannelID)
	assert.Equal(t, "10", msg.APNS.Headers["apns-priority"])
	assert.Equal(t, 1, *msg.APNS.Payload.Aps.Badge)
	assert.Equal(t, "time-sensitive", msg.APNS.Payload.Aps.CustomData["interruption-level"])
}

func TestTransientFailureKeepsRegistration(t *testing.T) {
	t1 := token("t1")
	f := newFixture(reg("r1", t1))
	f.gateway.FailToken(t1, messaging.KindTransient)

	report := f.d.DispatchAlert(context.Background(), 100, "Temperature Sensor Disconnected")

	assert.Equal(t, 1, report.Failure)
	r1, ok := f.repo.Get("r1")
	require.True(t, ok)
	assert.Nil(t, r1.LastUsed)
}

func TestNoValidTokensSkipsGateway(t *testing.T) {
	f := newFixture(reg("r1", "short"), reg("r2", "also:short"))

	report := f.d.DispatchAlert(context.Background(), 100, "Temperature Sensor Disconnected")

	assert.Equal(t, 0, f.gateway.Calls())
	assert.Equal(t, 2, report.Invalid)
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, f.publisher.Messages(topic))
}

func TestDispatchAlertSwallowsErrors(t *testing.T) {
	f := newFixture(reg("r1", token("t1")))
	f.gateway.FailBatch(fmt.Errorf("gateway down"))

	report := f.d.DispatchAlert(context.Background(), 100, "Temperature Sensor Disconnected")
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Failure)

	f.repo.FailOn("list", "", fmt.Errorf("firestore down"))
	report = f.d.DispatchAlert(context.Background(), 100, "Temperature Sensor Disconnected")
	assert.Equal(t, 0, report.Attempted)
}

func TestFailedReconcileWritesAreCollected(t *testing.T) {
	t1, t2, t3 := token("t1"), token("t2"), token("t3")
	f := newFixture(reg("r1", t1), reg("r2", t2), reg("r3", t3))
	f.gateway.FailToken(t3, messaging.KindInvalidArgument)
	f.repo.FailOn("update", "r1", fmt.Errorf("write failed"))
	f.repo.FailOn("delete", "r3", fmt.Errorf("delete failed"))

	report := f.d.DispatchAlert(context.Background(), 100, "Temperature Sensor Disconnected")

	assert.Len(t, report.Tasks, 3)
	failed := report.FailedTasks()
	require.Len(t, failed, 2)
	ids := []string{failed[0].ID, failed[1].ID}
	assert.ElementsMatch(t, []string{"r1", "r3"}, ids)

	r2, _ := f.repo.Get("r2")
	assert.NotNil(t, r2.LastUsed, "other writes still happen")
}

func TestAnnounce(t *testing.T) {
	f := newFixture(reg("r1", token("t1")), reg("r2", token("t2")))

	report, err := f.d.Announce(context.Background(), Announcement{Title: "Happy holidays", Body: "Enjoy"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Success)

	msg := f.gateway.Sent()[0]
	assert.Equal(t, "Happy holidays", msg.Notification.Title)
	assert.Equal(t, "announcement", msg.Data["type"])
	assert.Equal(t, "FLUTTER_NOTIFICATION_CLICK", msg.Data["click_action"])
	assert.Len(t, f.publisher.Messages(topic), 1)
}

func TestAnnounceTargetTokenBypassesRegistry(t *testing.T) {
	f := newFixture(reg("r1", token("t1")))
	f.repo.FailOn("list", "", fmt.Errorf("must not be listed"))

	report, err := f.d.Announce(context.Background(), Announcement{Title: "Test", Body: "Only you", TargetToken: "device-token"})
	require.NoError(t, err)

	assert.Equal(t, []string{"device-token"}, sentTokens(f.gateway))
	assert.Equal(t, 1, report.Success)
	assert.Empty(t, report.Tasks)
}

func TestAnnounceErrors(t *testing.T) {
	ctx := context.Background()
	a := Announcement{Title: "Title", Body: "Body"}

	var notFound *errors.NotFoundError
	var malformed *errors.MalformedRequestError

	_, err := newFixture().d.Announce(ctx, a)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "No devices registered for notifications", notFound.Msg)

	_, err = newFixture(reg("r1", "short")).d.Announce(ctx, a)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "No valid tokens found", notFound.Msg)

	_, err = newFixture().d.Announce(ctx, Announcement{Title: "Title"})
	assert.ErrorAs(t, err, &malformed)

	f := newFixture(reg("r1", token("t1")))
	f.repo.FailOn("list", "", fmt.Errorf("firestore down"))
	_, err = f.d.Announce(ctx, a)
	assert.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "No valid"))

	f = newFixture(reg("r1", token("t1")))
	f.gateway.FailBatch(fmt.Errorf("gateway down"))
	_, err = f.d.Announce(ctx, a)
	assert.Error(t, err)
}

func TestPublishFailureDoesNotFailDispatch(t *testing.T) {
	f := newFixture(reg("r1", token("t1")))
	f.publisher.Err = fmt.Errorf("pubsub down")

	report, err := f.d.Announce(context.Background(), Announcement{Title: "Title", Body: "Body"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Success)
}
