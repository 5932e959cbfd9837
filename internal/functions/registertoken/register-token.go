package registertoken

import (
	"context"
	"net/http"

	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/utils"
	httputils "github.com/sta1300/notifier-backend/internal/utils/http"
	v1 "github.com/sta1300/notifier-backend/pkg/api/v1"
)

//Registrar -_-
type Registrar interface {
	Register(ctx context.Context, req registry.Request) (registry.Result, error)
}

//Handler of the register-token endpoint.
type Handler struct {
	registrar Registrar
}

//NewHandler -_-
func NewHandler(registrar Registrar) *Handler {
	return &Handler{registrar: registrar}
}

//ServeHTTP Registers the push token of a device.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("register-token")

	var request v1.RegisterTokenRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling RegisterToken request: device %v, platform %v, token %v",
		request.DeviceID, request.Platform, utils.Redact(request.Token, 20))

	result, err := h.registrar.Register(ctx, registry.Request{
		Token:      request.Token,
		DeviceID:   request.DeviceID,
		Platform:   request.Platform,
		AppVersion: request.AppVersion,
	})
	if err != nil {
		logger.Errorf("Error registering token: %+v", err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, http.StatusOK, v1.RegisterTokenResponse{
		Message:      "Token registered successfully",
		RegisteredAt: result.Registration.LastUpdated,
	})
}
