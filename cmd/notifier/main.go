package main

import (
	"github.com/sethvargo/go-signalcontext"
	"github.com/sta1300/notifier-backend/internal/app"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/logging"

	server "github.com/sta1300/notifier-backend/pkg/httpserver"
)

func main() {

	ctx, done := signalcontext.OnInterrupt()
	defer done()

	conf, err := config.Load(ctx)
	if err != nil {
		logging.FromContext(ctx).Fatalf("config.Load: %v", err)
	}

	logger := logging.NewLogger(conf.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	notifier, err := app.New(ctx, conf)
	if err != nil {
		logger.Fatalf("app.New: %+v", err)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warnf("Error closing backends: %v", err)
		}
	}()

	srv, err := server.NewServer(ctx, &server.Config{Port: conf.Port})
	if err != nil {
		logger.Fatalf("server.New: %v", err)
	}
	logger.Infof("listening on %s", srv.Addr())

	notifier.RunBackground(ctx)

	if err := srv.ServeHTTPHandler(ctx, notifier.Handler(ctx)); err != nil {
		logger.Error(err)
	}
}
