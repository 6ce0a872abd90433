package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/catalog-ingestor/api/handlers"
	"github.com/feichai0017/catalog-ingestor/api/routes"
	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/internal/bootstrap"
	catalogsvc "github.com/feichai0017/catalog-ingestor/internal/service/catalog"
	"github.com/feichai0017/catalog-ingestor/internal/utils/validator"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

func main() {
	serverCfg := config.GetServerConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding(serverCfg.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", serverCfg.LogFile}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	for _, dir := range []string{serverCfg.UploadDir, serverCfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("Failed to create directory", logger.String("dir", dir), logger.Error(err))
		}
	}

	ctx := context.Background()
	rt, err := bootstrap.New(ctx, log)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", logger.Error(err))
	}
	defer rt.Close()

	dispatcher, inline := rt.Dispatcher()
	deps := catalogsvc.Deps{
		Validator:    validator.NewUploadValidator(log, validator.DefaultConfig(serverCfg.MaxUploadSize)),
		Dispatcher:   dispatcher,
		Hub:          rt.Hub,
		Status:       rt.Status,
		Repository:   rt.Repository,
		Storage:      rt.Storage,
		Capabilities: rt.Capabilities,
	}
	if rt.Queue != nil {
		deps.Queue = rt.Queue
	}
	service := catalogsvc.NewService(deps, log, &catalogsvc.ServiceConfig{
		UploadDir:    serverCfg.UploadDir,
		UploadSource: true,
	})

	// init handlers
	h := handlers.NewHandlers(service, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, h, serverCfg.OutputDir, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", serverCfg.Port),
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting",
			logger.Int("port", serverCfg.Port),
			logger.String("dispatch", serverCfg.DispatchMode),
			logger.String("capabilities", rt.Capabilities.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	if inline != nil {
		if err := inline.Wait(shutdownCtx); err != nil {
			log.Warn("Sessions still running at shutdown", logger.Error(err))
		}
	}
}
