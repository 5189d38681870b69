package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"algomind/src/log"
	"algomind/src/storage/postgres/sessionctrl"
)

var sessionTurns int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clear recorded conversation history",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session id]",
	Short: "Print the most recent turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd.Context(), func(svc *sessionctrl.SessionService) error {
			turns, err := svc.RecentTurns(cmd.Context(), args[0], sessionTurns)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(turns) == 0 {
				fmt.Fprintf(out, "session %s has no recorded turns\n", args[0])
				return nil
			}
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s\n", t.Role, t.Content)
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session id]",
	Short: "Forget a session so later questions start without context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd.Context(), func(svc *sessionctrl.SessionService) error {
			if err := svc.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			log.Info("Session deleted", "session", args[0])
			return nil
		})
	},
}

func withSessions(ctx context.Context, fn func(*sessionctrl.SessionService) error) error {
	db, err := openPostgres()
	if err != nil {
		return err
	}
	defer closeDB(db)(context.Background())

	svc, err := sessionctrl.NewSessionService(db, viper.GetInt64("server.node_id"))
	if err != nil {
		return fmt.Errorf("failed to initialize session service: %w", err)
	}
	if err := svc.Migrate(ctx); err != nil {
		return err
	}
	return fn(svc)
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsDeleteCmd)

	sessionsShowCmd.Flags().IntVar(&sessionTurns, "turns", 20, "number of turns to print")
}
