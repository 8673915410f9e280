package progress

import (
	"context"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/core/claims"
)

func HandleRecord(t *Tracker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		var ev Event
		if err := web.Decode(w, r, &ev); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		lessonID := web.Param(r, "lesson_id")
		rec, err := t.Record(ctx, clm.UserID, lessonID, ev)
		if err != nil {
			return weberr.Classify(fmt.Errorf("recording lesson[%s]: %w", lessonID, err))
		}

		return web.Respond(ctx, w, web.OK(
			"Progress updated successfully",
			"progress", rec.Progress,
			"enrollment", rec.Enrollment,
			"submission", rec.Submission,
		), http.StatusOK)
	}
}

func HandleCourseProgress(t *Tracker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		courseID := web.Param(r, "course_id")
		cp, err := t.CourseProgress(ctx, clm.UserID, courseID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("course progress[%s]: %w", courseID, err))
		}

		return web.Respond(ctx, w, web.OK("course progress", "progress", cp), http.StatusOK)
	}
}

func HandleDashboard(t *Tracker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		d, err := t.Dashboard(ctx, clm.UserID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("dashboard: %w", err))
		}

		return web.Respond(ctx, w, web.OK("dashboard", "stats", d), http.StatusOK)
	}
}
