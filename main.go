package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/api/handlers"
	"github.com/linesmerrill/incident-report-api/config"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()
	defer zap.L().Sync()

	if err := a.Initialize(); err != nil { //initialize database, scheduler and router
		zap.S().Fatalw("failed to initialize", "error", err)
	}
	a.Scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infow("incident-report-api is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("failed to shut down server", "error", err)
	}
	if err := a.Close(ctx); err != nil {
		zap.S().Errorw("failed to disconnect from database", "error", err)
	}
	zap.S().Info("incident-report-api stopped")
}
