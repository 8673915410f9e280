package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/irsalhamdi/e-learning/reconcile"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type adminConfig struct {
	DB      database.Config
	Timeout time.Duration `conf:"default:10m"`
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:           "elearn-admin",
		Short:         "Maintenance tasks for the e-learning database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(log))
	rootCmd.AddCommand(reconcileCmd(log))
	rootCmd.AddCommand(statusCmd(log, "suspend", "Suspend an enrollment"))
	rootCmd.AddCommand(statusCmd(log, "restore", "Restore a suspended enrollment"))

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadConfig() (adminConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return adminConfig{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg adminConfig
	if _, err := conf.Parse("ELEARN", &cfg); err != nil {
		return adminConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// withDB opens the database for the duration of fn.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *sqlx.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	return fn(ctx, db)
}

func newManager(log logrus.FieldLogger, db *sqlx.DB) *enrollment.Manager {
	return enrollment.NewManager(log, enrollment.NewStore(db), course.NewStore(db), user.NewStore(db), nil)
}

func migrateCmd(log logrus.FieldLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sqlx.DB) error {
				if err := database.Migrate(db); err != nil {
					return err
				}
				log.Info("migrations applied")
				return nil
			})
		},
	}
}

func reconcileCmd(log logrus.FieldLogger) *cobra.Command {
	var userID, courseID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild course mirrors and enrollment counters from enrollment rows",
		Long: `Rebuild derived enrollment data.

Without flags every user mirror and every course counter is rebuilt.

Examples:
  elearn-admin reconcile
  elearn-admin reconcile --user 4f1c...
  elearn-admin reconcile --course 9a2b...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sqlx.DB) error {
				m := newManager(log, db)

				switch {
				case userID != "":
					drifted, err := m.ReconcileUser(ctx, userID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "user %s reconciled, drifted=%t\n", userID, drifted)
				case courseID != "":
					drifted, err := m.ReconcileCourse(ctx, courseID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "course %s reconciled, drifted=%t\n", courseID, drifted)
				default:
					s, err := reconcile.New(log, "@hourly", 0, m)
					if err != nil {
						return err
					}
					rep := s.Run(ctx)
					fmt.Fprintf(cmd.OutOrStdout(), "users=%d drifted=%d courses=%d drifted=%d failed=%d\n",
						rep.Users, rep.UsersDrifted, rep.Courses, rep.CoursesDrifted, rep.Failed)
					if rep.Failed > 0 {
						return fmt.Errorf("%d reconciliations failed", rep.Failed)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "reconcile a single user")
	cmd.Flags().StringVar(&courseID, "course", "", "reconcile a single course")
	cmd.MarkFlagsMutuallyExclusive("user", "course")

	return cmd
}

func statusCmd(log logrus.FieldLogger, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [enrollment-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *sqlx.DB) error {
				m := newManager(log, db)

				var (
					e   enrollment.Enrollment
					err error
				)
				if action == "suspend" {
					e, err = m.Suspend(ctx, args[0])
				} else {
					e, err = m.Restore(ctx, args[0])
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "enrollment %s is now %s\n", e.ID, e.Status)
				return nil
			})
		},
	}
}
