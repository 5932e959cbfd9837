// Package functions exposes the notifier API as Cloud Functions. Background jobs (change feed observer and
// scheduler) run only in the long-running server, see cmd/notifier.
package functions

import (
	"context"
	"net/http"
	"sync"

	"github.com/sta1300/notifier-backend/internal/app"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
	httputils "github.com/sta1300/notifier-backend/internal/utils/http"
)

var (
	once     sync.Once
	instance *app.App
	initErr  error
)

func notifier(ctx context.Context) (*app.App, error) {
	once.Do(func() {
		conf, err := config.Load(ctx)
		if err != nil {
			initErr = err
			return
		}
		instance, initErr = app.New(ctx, conf)
	})
	return instance, initErr
}

func serve(w http.ResponseWriter, r *http.Request, route func(*app.App) http.Handler) {
	a, err := notifier(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Errorf("Could not initialize notifier: %+v", err)
		httputils.SendErrorResponse(w, r, &errors.UnknownError{Msg: err.Error()})
		return
	}
	route(a).ServeHTTP(w, r)
}

// RegisterToken RegisterToken handler.
func RegisterToken(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(a *app.App) http.Handler { return a.Routes().RegisterToken })
}

// DeviceStatus DeviceStatus handler.
func DeviceStatus(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(a *app.App) http.Handler { return a.Routes().DeviceStatus })
}

// Announcement Announcement handler.
func Announcement(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(a *app.App) http.Handler { return a.Routes().Announcement })
}
