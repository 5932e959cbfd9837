package devicestatus

import (
	"context"
	"net/http"

	"github.com/sta1300/notifier-backend/internal/logging"
	httputils "github.com/sta1300/notifier-backend/internal/utils/http"
	v1 "github.com/sta1300/notifier-backend/pkg/api/v1"
)

//StatusProcessor -_-
type StatusProcessor interface {
	Process(ctx context.Context, payload map[string]interface{}) error
}

//Handler of the device-status endpoint.
type Handler struct {
	processor StatusProcessor
}

//NewHandler -_-
func NewHandler(processor StatusProcessor) *Handler {
	return &Handler{processor: processor}
}

//ServeHTTP Accepts a status object pushed by the device.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("device-status")

	var payload map[string]interface{}

	if !httputils.DecodeJSONOrReportError(w, r, &payload) {
		return
	}

	if err := h.processor.Process(ctx, payload); err != nil {
		logger.Warnf("Error processing device status: %+v", err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, http.StatusOK, v1.DeviceStatusResponse{Message: "Data processed successfully"})
}
