/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "algomind/handler/http"
	"algomind/src/infrastructure/events"
	"algomind/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring server",
	Long: `The serve command loads the embedding artifact and starts an HTTP server that
answers algorithm questions, streaming its reasoning steps as server-sent events.
The server refuses to start when the artifact is missing or malformed.`,
	Run: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) {
	a, err := buildApp(cmd.Context(), true)
	if err != nil {
		log.Error(err, "Failed to initialize service")
		os.Exit(1)
	}

	// with the in-process backend nobody else can consume completions
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if a.events != nil && a.sessions != nil && viper.GetString("events.backend") == events.BackendGoChannel {
		router, err := events.NewRouter(a.events.Subscriber, watermill.NewStdLogger(false, false), events.RecordSessions(a.sessions))
		if err != nil {
			log.Error(err, "Failed to create completion router")
			os.Exit(1)
		}
		go runRouter(consumerCtx, router)
	}

	if viper.GetString("log.format") == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	// Register routes
	httpHdlr.NewHandler(a.pipeline, a.probes).RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr, "entities", a.table.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	stopConsumer()
	a.Close(ctx)

	log.Info("Server exited")
}

// requestLogger logs one line per request through the global logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.V(1).Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
