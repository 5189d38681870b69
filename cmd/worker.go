package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"algomind/src/infrastructure/events"
	"algomind/src/log"
	"algomind/src/storage/postgres/sessionctrl"
)

// workerCmd consumes pipeline completions and records the conversation history
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Record finished conversations from the completion queue",
	Long: `The worker subscribes to pipeline.completed on AMQP and appends every completed
question and answer to its session in Postgres, so later questions of the same
session can refer back to them.`,
	RunE: RunWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func RunWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

	if backend := viper.GetString("events.backend"); backend != events.BackendAMQP {
		return fmt.Errorf("worker needs events.backend=%s, got %q", events.BackendAMQP, backend)
	}

	db, err := openPostgres()
	if err != nil {
		return err
	}
	defer closeDB(db)(context.Background())

	sessions, err := sessionctrl.NewSessionService(db, viper.GetInt64("server.node_id"))
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	if err := sessions.Migrate(cmd.Context()); err != nil {
		return err
	}

	ps, err := events.Open(events.BackendAMQP, viper.GetString("amqp.url"), logger)
	if err != nil {
		return err
	}
	defer ps.Close()

	router, err := events.NewRouter(ps.Subscriber, logger, events.RecordSessions(sessions))
	if err != nil {
		return err
	}

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runRouter(ctx, router)
		close(done)
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-done
	log.Info("Router stopped")

	return nil
}

func runRouter(ctx context.Context, router *message.Router) {
	if err := router.Run(ctx); err != nil {
		log.Error(err, "Completion router stopped")
	}
}
