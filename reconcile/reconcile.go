// Package reconcile periodically rebuilds the user course mirrors and the
// course enrollment counters from the enrollment rows.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) (enrollment.Report, error)
}

type Scheduler struct {
	log     logrus.FieldLogger
	rec     Reconciler
	timeout time.Duration
	cron    *cron.Cron
}

// New schedules r on spec, a cron expression or descriptor such as
// "@every 1h". Overlapping runs are skipped. Call Start to begin.
func New(log logrus.FieldLogger, spec string, timeout time.Duration, r Reconciler) (*Scheduler, error) {
	s := &Scheduler{
		log:     log,
		rec:     r,
		timeout: timeout,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduling reconciliation %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("reconciliation scheduler started")
}

// Stop prevents new runs and waits for a running one until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run reconciles everything once.
func (s *Scheduler) Run(ctx context.Context) enrollment.Report {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	rep, err := s.rec.ReconcileAll(ctx)

	log := s.log.WithFields(logrus.Fields{
		"users":           rep.Users,
		"users_drifted":   rep.UsersDrifted,
		"courses":         rep.Courses,
		"courses_drifted": rep.CoursesDrifted,
		"failed":          rep.Failed,
		"since":           time.Since(start).String(),
	})
	if err != nil {
		log.WithError(err).Error("reconciliation finished with failures")
		return rep
	}
	log.Info("reconciliation finished")
	return rep
}
