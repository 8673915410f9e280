package enrollment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/validate"
)

func HandleEnroll(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var in EnrollRequest
		if err := web.Decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		courseID := web.Param(r, "course_id")
		e, created, err := m.Enroll(ctx, clm.UserID, courseID, PaymentInfo{
			Method:    in.PaymentMethod,
			PaymentID: in.PaymentID,
			OrderID:   in.OrderID,
			Amount:    in.AmountPaid,
		})
		if err != nil {
			return weberr.Classify(fmt.Errorf("enrolling user[%s] in course[%s]: %w", clm.UserID, courseID, err))
		}

		if !created {
			return web.Respond(ctx, w, web.OK("Already enrolled", "enrollment", e), http.StatusOK)
		}
		return web.Respond(ctx, w, web.OK("Successfully enrolled", "enrollment", e), http.StatusCreated)
	}
}

func HandleListMine(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		es, err := m.ListMine(ctx, clm.UserID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("listing enrollments of user[%s]: %w", clm.UserID, err))
		}

		return web.Respond(ctx, w, web.OK("enrollments", "enrollments", es), http.StatusOK)
	}
}

func HandleUnenroll(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		id := web.Param(r, "id")
		if err := m.Unenroll(ctx, id, clm.UserID); err != nil {
			return weberr.Classify(fmt.Errorf("unenrolling[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("Enrollment deleted"), http.StatusOK)
	}
}

func HandleDrop(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		id := web.Param(r, "id")
		e, err := m.Drop(ctx, id, clm.UserID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("dropping enrollment[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("Enrollment dropped", "enrollment", e), http.StatusOK)
	}
}

func HandleSetCurrentLesson(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var in LessonUpdate
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		id := web.Param(r, "id")
		e, err := m.SetCurrentLesson(ctx, id, clm.UserID, in)
		if err != nil {
			return weberr.Classify(fmt.Errorf("updating enrollment[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("Progress updated", "enrollment", e), http.StatusOK)
	}
}

func HandleSuspend(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		e, err := m.Suspend(ctx, id)
		if err != nil {
			return weberr.Classify(fmt.Errorf("suspending enrollment[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("Enrollment suspended", "enrollment", e), http.StatusOK)
	}
}

func HandleRestore(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		e, err := m.Restore(ctx, id)
		if err != nil {
			return weberr.Classify(fmt.Errorf("restoring enrollment[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("Enrollment restored", "enrollment", e), http.StatusOK)
	}
}

func HandleReconcileUser(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		drifted, err := m.ReconcileUser(ctx, id)
		if err != nil {
			return weberr.Classify(fmt.Errorf("reconciling user[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("user reconciled", "drifted", drifted), http.StatusOK)
	}
}

func HandleReconcileCourse(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		drifted, err := m.ReconcileCourse(ctx, id)
		if err != nil {
			return weberr.Classify(fmt.Errorf("reconciling course[%s]: %w", id, err))
		}

		return web.Respond(ctx, w, web.OK("course reconciled", "drifted", drifted), http.StatusOK)
	}
}

func HandleReconcileAll(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		rep, err := m.ReconcileAll(ctx)
		if err != nil {
			return fmt.Errorf("reconciling all: %w", err)
		}

		return web.Respond(ctx, w, web.OK("reconciled", "report", rep), http.StatusOK)
	}
}
