// Package dispatch fans a notification out to every registered push endpoint and reconciles the
// registry with the per-endpoint results.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	fbmessaging "firebase.google.com/go/v4/messaging"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/messaging"
	"github.com/sta1300/notifier-backend/internal/metrics"
	"github.com/sta1300/notifier-backend/internal/pubsub"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/utils"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
)

const maxParallelWrites = 16

//Kind of dispatch.
type Kind string

const (
	//KindAlert Error alert sent by the status processor.
	KindAlert Kind = "alert"
	//KindAnnouncement Operator or scheduled announcement.
	KindAnnouncement Kind = "announcement"
)

//TokenPolicy Format rule a stored token must pass to be sent to: longer than MinLength and containing
//Separator (when set).
type TokenPolicy struct {
	MinLength int
	Separator string
}

//Valid -_-
func (p TokenPolicy) Valid(token string) bool {
	if len(token) <= p.MinLength {
		return false
	}
	return p.Separator == "" || strings.Contains(token, p.Separator)
}

//Announcement Operator supplied notification. TargetToken sends to that single endpoint only.
type Announcement struct {
	Title       string `json:"title" validate:"required"`
	Body        string `json:"body" validate:"required"`
	TargetToken string `json:"targetToken"`
}

//Report Outcome of one dispatch.
type Report struct {
	Kind       Kind
	Registered int
	Attempted  int
	Success    int
	Failure    int
	Skipped    int
	Invalid    int
	Tasks      []registry.WriteOutcome
}

//FailedTasks Reconcile and cleanup writes which failed.
func (r Report) FailedTasks() []registry.WriteOutcome {
	return registry.Failed(r.Tasks)
}

//ReportEvent Report as published to Pub/Sub.
type ReportEvent struct {
	Kind         Kind   `json:"kind"`
	ErrorCode    int    `json:"errorCode,omitempty"`
	Attempted    int    `json:"attempted"`
	Success      int    `json:"success"`
	Failure      int    `json:"failure"`
	Skipped      int    `json:"skipped"`
	Invalid      int    `json:"invalid"`
	FailedTasks  int    `json:"failedTasks"`
	DispatchedAt string `json:"dispatchedAt"`
}

//Config Dependencies and settings of a Dispatcher.
type Config struct {
	Registry       registry.Repository
	Gateway        messaging.PushSender
	Publisher      pubsub.EventPublisher
	Topic          string
	Policy         TokenPolicy
	GatewayTimeout time.Duration
}

//Dispatcher -_-
type Dispatcher struct {
	registry  registry.Repository
	gateway   messaging.PushSender
	publisher pubsub.EventPublisher
	topic     string
	policy    TokenPolicy
	timeout   time.Duration
	now       func() time.Time
}

//NewDispatcher -_-
func NewDispatcher(conf Config) *Dispatcher {
	timeout := conf.GatewayTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry:  conf.Registry,
		gateway:   conf.Gateway,
		publisher: conf.Publisher,
		topic:     conf.Topic,
		policy:    conf.Policy,
		timeout:   timeout,
		now:       utils.GetTimeNow,
	}
}

//DispatchAlert Sends an error alert to all registered endpoints. Failures are logged, never returned.
func (d *Dispatcher) DispatchAlert(ctx context.Context, code int, message string) Report {
	logger := logging.FromContext(ctx).Named("dispatch.DispatchAlert")

	now := d.now()
	report, err := d.fanOut(ctx, KindAlert, AlertContent(code, message, now))
	if err != nil {
		logger.Errorf("Error sending notification for error %v: %+v", code, err)
	}

	if report.Attempted > 0 {
		d.publish(ctx, report, code, now)
		logger.Infof("Notification sent for error %v: %v successful, %v failed", code, report.Success, report.Failure)
	}

	return report
}

//Announce Sends an announcement to all registered endpoints, or to the target token only.
func (d *Dispatcher) Announce(ctx context.Context, a Announcement) (Report, error) {
	logger := logging.FromContext(ctx).Named("dispatch.Announce")

	if a.Title == "" || a.Body == "" {
		return Report{Kind: KindAnnouncement}, &errors.MalformedRequestError{Msg: "Title and body are required"}
	}

	now := d.now()
	content := AnnouncementContent(a, now)

	if a.TargetToken != "" {
		logger.Infof("Sending announcement to single token %v", utils.Redact(a.TargetToken, 20))
		return d.sendTargeted(ctx, content, a.TargetToken)
	}

	report, err := d.fanOut(ctx, KindAnnouncement, content)
	if err != nil {
		return report, err
	}

	if report.Registered == 0 {
		return report, &errors.NotFoundError{Msg: "No devices registered for notifications"}
	}
	if report.Attempted == 0 {
		return report, &errors.NotFoundError{Msg: "No valid tokens found"}
	}

	d.publish(ctx, report, 0, now)
	logger.Infof("Announcement sent: %v successful, %v failed", report.Success, report.Failure)

	return report, nil
}

func (d *Dispatcher) sendTargeted(ctx context.Context, content Content, token string) (Report, error) {
	report := Report{Kind: KindAnnouncement, Attempted: 1}

	results, err := d.send(ctx, KindAnnouncement, []*fbmessaging.Message{content.Message(token)})
	if err != nil {
		report.Failure = 1
		return report, err
	}

	if results[0].Success {
		report.Success = 1
	} else {
		report.Failure = 1
		logging.FromContext(ctx).Named("dispatch.Announce").
			Warnf("Targeted announcement failed (%v): %v", results[0].Kind, results[0].Err)
	}
	d.count(report)

	return report, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, kind Kind, content Content) (Report, error) {
	logger := logging.FromContext(ctx).Named("dispatch.fanOut")

	report := Report{Kind: kind}

	regs, err := d.registry.List(ctx)
	if err != nil {
		return report, fmt.Errorf("Error while listing registrations: %w", err)
	}
	report.Registered = len(regs)

	if len(regs) == 0 {
		logger.Info("No registered devices found")
		return report, nil
	}

	seen := make(map[string]bool, len(regs))
	var targets []registry.Registration
	var invalid []string

	for _, reg := range regs {
		if !d.policy.Valid(reg.Token) {
			logger.Debugf("Invalid token format for %v, removing", utils.Redact(reg.ID, 20))
			invalid = append(invalid, reg.ID)
			continue
		}
		if seen[reg.Token] {
			logger.Debugf("Skipping duplicate token of %v", utils.Redact(reg.ID, 20))
			report.Skipped++
			continue
		}
		seen[reg.Token] = true
		targets = append(targets, reg)
	}

	report.Invalid = len(invalid)
	if len(invalid) > 0 {
		outcomes := d.registry.DeleteMany(ctx, invalid)
		report.Tasks = append(report.Tasks, outcomes...)
		metrics.RegistrationsPruned.WithLabelValues("invalid_format").Add(float64(len(outcomes) - len(registry.Failed(outcomes))))
	}

	if len(targets) == 0 {
		logger.Info("No valid tokens to send to")
		d.count(report)
		return report, nil
	}

	msgs := make([]*fbmessaging.Message, len(targets))
	for i, reg := range targets {
		msgs[i] = content.Message(reg.Token)
	}

	report.Attempted = len(targets)

	results, err := d.send(ctx, kind, msgs)
	if err != nil {
		report.Failure = len(targets)
		d.count(report)
		return report, err
	}

	var delivered, permanent []string
	for i, r := range results {
		reg := targets[i]
		if r.Success {
			report.Success++
			delivered = append(delivered, reg.ID)
			continue
		}

		report.Failure++
		if r.Kind.Permanent() {
			logger.Infof("Removing registration %v, token rejected: %v", utils.Redact(reg.ID, 20), r.Kind)
			permanent = append(permanent, reg.ID)
		} else {
			logger.Warnf("Delivery to %v failed (%v): %v", utils.Redact(reg.ID, 20), r.Kind, r.Err)
		}
	}

	report.Tasks = append(report.Tasks, d.reconcile(ctx, delivered, permanent)...)

	for _, o := range report.FailedTasks() {
		logger.Warnf("Registry %v of %v failed: %v", o.Op, utils.Redact(o.ID, 20), o.Err)
	}

	d.count(report)
	return report, nil
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, msgs []*fbmessaging.Message) ([]messaging.SendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	results, err := d.gateway.SendBatch(sendCtx, msgs)
	metrics.GatewayDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("Error while sending %v messages: %w", len(msgs), err)
	}
	if len(results) != len(msgs) {
		return nil, fmt.Errorf("gateway returned %v results for %v messages", len(results), len(msgs))
	}
	return results, nil
}

// reconcile runs every registry write as an independent task and collects all outcomes.
func (d *Dispatcher) reconcile(ctx context.Context, delivered, permanent []string) []registry.WriteOutcome {
	now := d.now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []registry.WriteOutcome
	)
	collect := func(o ...registry.WriteOutcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o...)
	}

	if len(permanent) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleted := d.registry.DeleteMany(ctx, permanent)
			metrics.RegistrationsPruned.WithLabelValues("permanent_failure").Add(float64(len(deleted) - len(registry.Failed(deleted))))
			collect(deleted...)
		}()
	}

	sem := make(chan struct{}, maxParallelWrites)
	for _, id := range delivered {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			err := d.registry.MarkDelivered(ctx, id, now)
			collect(registry.WriteOutcome{ID: id, Op: registry.OpMarkDelivered, Err: err})
		}(id)
	}

	wg.Wait()
	return outcomes
}

func (d *Dispatcher) count(r Report) {
	kind := string(r.Kind)
	metrics.DeliveryResults.WithLabelValues(kind, "success").Add(float64(r.Success))
	metrics.DeliveryResults.WithLabelValues(kind, "failure").Add(float64(r.Failure))
	metrics.DeliveryResults.WithLabelValues(kind, "skipped").Add(float64(r.Skipped))
	metrics.DeliveryResults.WithLabelValues(kind, "invalid").Add(float64(r.Invalid))
}

func (d *Dispatcher) publish(ctx context.Context, r Report, code int, now time.Time) {
	if d.publisher == nil || d.topic == "" {
		return
	}

	event := ReportEvent{
		Kind:         r.Kind,
		ErrorCode:    code,
		Attempted:    r.Attempted,
		Success:      r.Success,
		Failure:      r.Failure,
		Skipped:      r.Skipped,
		Invalid:      r.Invalid,
		FailedTasks:  len(r.FailedTasks()),
		DispatchedAt: utils.ISOTimestamp(now),
	}

	if err := d.publisher.Publish(ctx, d.topic, event); err != nil {
		logging.FromContext(ctx).Named("dispatch.publish").Warnf("Error publishing dispatch report: %v", err)
	}
}
