// Package devicestatus turns device status payloads into rate limited error alerts and archives every
// payload received.
package devicestatus

import (
	"context"
	"time"

	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/metrics"
	"github.com/sta1300/notifier-backend/internal/statusarchive"
	"github.com/sta1300/notifier-backend/internal/utils"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
)

//Limiter Decides whether an alert for a code may be sent now.
type Limiter interface {
	Allow(ctx context.Context, code int) bool
}

//AlertDispatcher Sends an error alert to all endpoints.
type AlertDispatcher interface {
	DispatchAlert(ctx context.Context, code int, message string) dispatch.Report
}

//Processor -_-
type Processor struct {
	limiter    Limiter
	dispatcher AlertDispatcher
	archive    statusarchive.Archive
	now        func() time.Time
}

//NewProcessor -_-
func NewProcessor(limiter Limiter, dispatcher AlertDispatcher, archive statusarchive.Archive) *Processor {
	return &Processor{
		limiter:    limiter,
		dispatcher: dispatcher,
		archive:    archive,
		now:        utils.GetTimeNow,
	}
}

//ErrorCode Extracts Stability.Errors.EVT from a payload. Returns false when the payload has no Stability
//block at all.
func ErrorCode(payload map[string]interface{}) (code int, ok bool) {
	stability, ok := payload["Stability"].(map[string]interface{})
	if !ok || stability == nil {
		return 0, false
	}

	errs, _ := stability["Errors"].(map[string]interface{})
	code, _ = utils.ToInt(errs["EVT"])
	return code, true
}

//Process Alerts on a positive error code (subject to the cooldown) and archives the payload.
func (p *Processor) Process(ctx context.Context, payload map[string]interface{}) error {
	logger := logging.FromContext(ctx).Named("devicestatus.Process")

	code, ok := ErrorCode(payload)
	if !ok {
		return &errors.MalformedPayloadError{Msg: "Invalid data format"}
	}

	if code > 0 {
		message := Message(code)
		logger.Infof("Error detected: %v - %v", code, message)

		if p.limiter.Allow(ctx, code) {
			p.dispatcher.DispatchAlert(ctx, code, message)
		}
	}

	rec := statusarchive.Record{
		Payload:    utils.NormalizeNumbers(payload).(map[string]interface{}),
		ErrorCode:  code,
		ReceivedAt: p.now(),
	}

	if err := p.archive.Append(ctx, rec); err != nil {
		metrics.StatusRecords.WithLabelValues("error").Inc()
		logger.Errorf("Error while saving status record: %v", err)
		return err
	}
	metrics.StatusRecords.WithLabelValues("ok").Inc()

	logger.Debugf("Status data saved, error code %v", code)
	return nil
}
