package announcement

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/sta1300/notifier-backend/internal/dispatch"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
	httputils "github.com/sta1300/notifier-backend/internal/utils/http"
	v1 "github.com/sta1300/notifier-backend/pkg/api/v1"
)

//Announcer -_-
type Announcer interface {
	Announce(ctx context.Context, a dispatch.Announcement) (dispatch.Report, error)
}

//Handler of the announcement endpoint.
type Handler struct {
	announcer Announcer
	apiKey    string
}

//NewHandler Empty apiKey leaves the endpoint open.
func NewHandler(announcer Announcer, apiKey string) *Handler {
	return &Handler{announcer: announcer, apiKey: apiKey}
}

//ServeHTTP Sends an announcement to all registered devices, or to the target token only.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("announcement")

	if !h.authenticated(r) {
		httputils.SendErrorResponse(w, r, &errors.MalformedRequestError{Code: http.StatusUnauthorized, Msg: "Bad api key"})
		return
	}

	var request v1.AnnouncementRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Infof("Handling announcement request: %v", request.Title)

	report, err := h.announcer.Announce(ctx, dispatch.Announcement{
		Title:       request.Title,
		Body:        request.Body,
		TargetToken: request.TargetToken,
	})
	if err != nil {
		logger.Warnf("Announcement failed: %+v", err)
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, http.StatusOK, v1.AnnouncementResponse{
		Message: "Announcement processing complete",
		Stats: v1.AnnouncementStats{
			Success: report.Success,
			Failure: report.Failure,
		},
	})
}

func (h *Handler) authenticated(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}

	provided := r.URL.Query()["apikey"]
	return len(provided) == 1 && subtle.ConstantTimeCompare([]byte(provided[0]), []byte(h.apiKey)) == 1
}
